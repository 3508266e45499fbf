package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/shopspring/decimal"
)

type CouponHandler struct {
	coupons *service.CouponService
	timeout time.Duration
}

func NewCouponHandler(coupons *service.CouponService, timeout time.Duration) *CouponHandler {
	return &CouponHandler{
		coupons: coupons,
		timeout: timeout,
	}
}

type CreateCouponRequestDTO struct {
	Code          string              `json:"code"`
	DiscountType  domain.DiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	MinOrderValue decimal.Decimal     `json:"min_order_value"`
	MaxUsage      int                 `json:"max_usage"`
	ExpiredAt     time.Time           `json:"expired_at"`
	IsActive      *bool               `json:"is_active,omitempty"`
}

// POST /api/v1/admin/coupons
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	coupon, err := h.coupons.CreateCoupon(ctx, service.CreateCouponRequest{
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinOrderValue: req.MinOrderValue,
		MaxUsage:      req.MaxUsage,
		ExpiredAt:     req.ExpiredAt,
		IsActive:      req.IsActive,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, coupon)
}
