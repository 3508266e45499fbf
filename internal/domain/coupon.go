package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

type Coupon struct {
	ID            uuid.UUID       `json:"id"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	MaxUsage      int             `json:"max_usage"`
	UsedCount     int             `json:"used_count"`
	ExpiredAt     time.Time       `json:"expired_at"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NormalizeCouponCode makes coupon lookups case-insensitive.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Coupon) Exhausted() bool {
	return c.UsedCount >= c.MaxUsage
}

// Validate reports whether the coupon can be redeemed at now.
func (c *Coupon) Validate(now time.Time) error {
	if !c.IsActive || !now.Before(c.ExpiredAt) {
		return ErrInvalidCoupon.WithMessage("coupon %q is invalid or expired", c.Code)
	}
	if c.Exhausted() {
		return ErrCouponExhausted.WithMessage("coupon %q has reached its usage limit", c.Code)
	}
	return nil
}
