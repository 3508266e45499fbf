package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCart_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[domain.Cart](t, rec)
	assert.Equal(t, s.userID, cart.UserID)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalPrice.IsZero())
}

func TestAddItem_Success(t *testing.T) {
	s := newTestServer(t)
	shirt := s.addProduct("Shirt", "20", 10)

	cart := s.addToCart(shirt, 3)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, shirt, cart.Items[0].ProductID)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.True(t, cart.SubTotal.Equal(decimal.NewFromInt(60)))
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(60)))
}

func TestAddItem_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"invalid json", "invalid json", "invalid_request"},
		{"missing product", AddItemRequestDTO{Quantity: 1}, "invalid_product_id"},
		{"quantity too large", AddItemRequestDTO{ProductID: uuid.New(), Quantity: 100}, "invalid_quantity"},
		{"negative quantity", AddItemRequestDTO{ProductID: uuid.New(), Quantity: -1}, "invalid_quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/v1/cart/items", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAddItem_UnknownProduct(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: uuid.New(), Quantity: 1})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", decode[ErrorResponse](t, rec).Code)
}

func TestAddItem_InsufficientStock(t *testing.T) {
	s := newTestServer(t)
	shirt := s.addProduct("Shirt", "20", 5)
	s.addToCart(shirt, 3)

	rec := s.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: shirt, Quantity: 3})

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Code)
	assert.EqualValues(t, 2, resp.Details["available"])
}

func TestUpdateQuantity(t *testing.T) {
	s := newTestServer(t)
	cart := s.addToCart(s.addProduct("Shirt", "20", 10), 1)
	itemID := cart.Items[0].ID

	rec := s.do(http.MethodPut, "/api/v1/cart/items/"+itemID.String(), UpdateQuantityRequestDTO{Quantity: 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart = decode[domain.Cart](t, rec)
	assert.Equal(t, 4, cart.Items[0].Quantity)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(80)))

	rec = s.do(http.MethodPut, "/api/v1/cart/items/"+itemID.String(), UpdateQuantityRequestDTO{Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/cart/items/not-a-uuid", UpdateQuantityRequestDTO{Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_item_id", decode[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPut, "/api/v1/cart/items/"+uuid.NewString(), UpdateQuantityRequestDTO{Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveItemAndClearCart(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(s.addProduct("Shirt", "20", 10), 1)
	cart := s.addToCart(s.addProduct("Hat", "15", 10), 2)
	require.Len(t, cart.Items, 2)

	rec := s.do(http.MethodDelete, "/api/v1/cart/items/"+cart.Items[0].ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[domain.Cart](t, rec).Items, 1)

	rec = s.do(http.MethodDelete, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cart = decode[domain.Cart](t, rec)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalPrice.IsZero())
}

func TestCoupon_ApplyAndRemove(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.CreateCoupon(s.ctx, &domain.Coupon{
		Code:          "SAVE10",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		MinOrderValue: decimal.Zero,
		MaxUsage:      5,
		ExpiredAt:     time.Now().Add(time.Hour),
		IsActive:      true,
	}))
	s.addToCart(s.addProduct("Shoes", "400", 5), 1)

	rec := s.do(http.MethodPost, "/api/v1/cart/coupon", ApplyCouponRequestDTO{Code: "save10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := decode[domain.Cart](t, rec)
	assert.NotNil(t, cart.CouponID)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(360)))

	rec = s.do(http.MethodPost, "/api/v1/cart/coupon", ApplyCouponRequestDTO{Code: "SAVE10"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "COUPON_ALREADY_APPLIED", decode[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodDelete, "/api/v1/cart/coupon", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cart = decode[domain.Cart](t, rec)
	assert.Nil(t, cart.CouponID)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(400)))
}

func TestCoupon_Unknown(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(s.addProduct("Shoes", "400", 5), 1)

	rec := s.do(http.MethodPost, "/api/v1/cart/coupon", ApplyCouponRequestDTO{Code: "NOPE"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_COUPON", decode[ErrorResponse](t, rec).Code)
}
