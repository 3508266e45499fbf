package service

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type CreateCouponRequest struct {
	Code          string
	DiscountType  domain.DiscountType
	DiscountValue decimal.Decimal
	MinOrderValue decimal.Decimal
	MaxUsage      int
	ExpiredAt     time.Time
	// IsActive defaults to true.
	IsActive *bool
}

type CouponService struct {
	store repository.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewCouponService(store repository.Store, log zerolog.Logger) *CouponService {
	return &CouponService{
		store: store,
		log:   log.With().Str("component", "coupon_service").Logger(),
		now:   time.Now,
	}
}

func (s *CouponService) CreateCoupon(ctx context.Context, req CreateCouponRequest) (*domain.Coupon, error) {
	coupon := &domain.Coupon{
		Code:          domain.NormalizeCouponCode(req.Code),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinOrderValue: req.MinOrderValue,
		MaxUsage:      req.MaxUsage,
		ExpiredAt:     req.ExpiredAt,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if err := validateCoupon(coupon, s.now()); err != nil {
		return nil, err
	}

	if err := s.store.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}
	s.log.Info().Str("coupon_id", coupon.ID.String()).Str("code", coupon.Code).Msg("coupon created")
	return coupon, nil
}

func validateCoupon(c *domain.Coupon, now time.Time) error {
	switch {
	case c.Code == "":
		return domain.ErrValidation.WithMessage("coupon code is required")
	case !c.DiscountType.Valid():
		return domain.ErrValidation.WithMessage("discount type must be PERCENTAGE or FIXED")
	case !c.DiscountValue.IsPositive():
		return domain.ErrValidation.WithMessage("discount value must be positive")
	case c.DiscountType == domain.DiscountPercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return domain.ErrValidation.WithMessage("percentage discount cannot exceed 100")
	case c.MinOrderValue.IsNegative():
		return domain.ErrValidation.WithMessage("minimum order value cannot be negative")
	case c.MaxUsage < 1:
		return domain.ErrValidation.WithMessage("max usage must be at least 1")
	case !c.ExpiredAt.After(now):
		return domain.ErrValidation.WithMessage("expiry must be in the future")
	}
	return nil
}
