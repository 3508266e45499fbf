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

func TestListAndGetOrders(t *testing.T) {
	s := newTestServer(t)
	res := s.placeOrder(domain.PaymentMethodCash)

	rec := s.do(http.MethodGet, "/api/v1/orders?page=1&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[OrderListResponseDTO](t, rec)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, res.Order.ID, list.Orders[0].ID)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 5, list.Limit)

	rec = s.do(http.MethodGet, "/api/v1/orders/"+res.Order.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[domain.Order](t, rec)
	assert.Equal(t, res.Order.OrderNumber, order.OrderNumber)
	assert.Len(t, order.Items, 1)

	// other buyers see neither the order nor the listing entry
	stranger := uuid.New()
	rec = s.do(http.MethodGet, "/api/v1/orders/"+res.Order.ID.String(), nil, asUser(stranger))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/api/v1/orders", nil, asUser(stranger))
	assert.Empty(t, decode[OrderListResponseDTO](t, rec).Orders)

	rec = s.do(http.MethodGet, "/api/v1/orders?page=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_page", decode[ErrorResponse](t, rec).Code)
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t)
	res := s.placeOrder(domain.PaymentMethodCash)

	rec := s.do(http.MethodPost, "/api/v1/orders/"+res.Order.ID.String()+"/cancel", nil, asUser(uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/orders/"+res.Order.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.OrderStatusCancelled, decode[domain.Order](t, rec).Status)

	product, err := s.store.GetProduct(s.ctx, res.Order.Items[0].ProductID)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
	assert.Equal(t, 0, product.Sold)

	rec = s.do(http.MethodPost, "/api/v1/orders/"+res.Order.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ORDER_LOCKED", decode[ErrorResponse](t, rec).Code)
}

func TestAdminUpdateOrder(t *testing.T) {
	s := newTestServer(t)
	res := s.placeOrder(domain.PaymentMethodCash)
	path := "/api/v1/admin/orders/" + res.Order.ID.String()
	delivered := true

	rec := s.do(http.MethodPatch, path, domain.OrderUpdate{IsDelivered: &delivered}, asAdmin(s.adminID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	order := decode[domain.Order](t, rec)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	assert.True(t, order.IsPaid)
	assert.NotNil(t, order.DeliveredAt)

	pending := domain.OrderStatusPending
	rec = s.do(http.MethodPatch, path, domain.OrderUpdate{Status: &pending}, asAdmin(s.adminID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPatch, path, map[string]any{}, asAdmin(s.adminID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_update", decode[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPatch, "/api/v1/admin/orders/"+uuid.NewString(), domain.OrderUpdate{IsDelivered: &delivered}, asAdmin(s.adminID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminUpdateOrder_CancelledAndDeliveredRejected(t *testing.T) {
	s := newTestServer(t)
	res := s.placeOrder(domain.PaymentMethodCash)
	cancelled := domain.OrderStatusCancelled
	delivered := true

	rec := s.do(http.MethodPatch, "/api/v1/admin/orders/"+res.Order.ID.String(),
		domain.OrderUpdate{Status: &cancelled, IsDelivered: &delivered}, asAdmin(s.adminID))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.OrderStatusPending, s.storedOrder(res.Order.ID).Status)
}

func TestAdminListOrders_Filter(t *testing.T) {
	s := newTestServer(t)
	cash := s.placeOrder(domain.PaymentMethodCash)
	card := s.placeOrder(domain.PaymentMethodCreditCard)

	rec := s.do(http.MethodGet, "/api/v1/admin/orders?payment_method=CREDIT_CARD", nil, asAdmin(s.adminID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[OrderListResponseDTO](t, rec)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, card.Order.ID, list.Orders[0].ID)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders?user_id="+s.userID.String(), nil, asAdmin(s.adminID))
	require.Equal(t, http.StatusOK, rec.Code)
	ids := []uuid.UUID{}
	for _, o := range decode[OrderListResponseDTO](t, rec).Orders {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{cash.Order.ID, card.Order.ID}, ids)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders?status=SHIPPED", nil, asAdmin(s.adminID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders?user_id=me", nil, asAdmin(s.adminID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCreateCoupon(t *testing.T) {
	s := newTestServer(t)
	req := CreateCouponRequestDTO{
		Code:          "spring25",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(25),
		MinOrderValue: decimal.NewFromInt(100),
		MaxUsage:      10,
		ExpiredAt:     time.Now().Add(24 * time.Hour),
	}

	rec := s.do(http.MethodPost, "/api/v1/admin/coupons", req, asAdmin(s.adminID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	coupon := decode[domain.Coupon](t, rec)
	assert.Equal(t, "SPRING25", coupon.Code)
	assert.True(t, coupon.IsActive)

	rec = s.do(http.MethodPost, "/api/v1/admin/coupons", req, asAdmin(s.adminID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "COUPON_ALREADY_EXISTS", decode[ErrorResponse](t, rec).Code)

	req.Code = "HALFOFF"
	req.DiscountValue = decimal.NewFromInt(150)
	rec = s.do(http.MethodPost, "/api/v1/admin/coupons", req, asAdmin(s.adminID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/admin/coupons", req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
