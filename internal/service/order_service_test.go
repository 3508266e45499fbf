package service

import (
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusPtr(s domain.OrderStatus) *domain.OrderStatus {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

type cashOrder struct {
	order   *domain.Order
	product uuid.UUID
	coupon  *domain.Coupon
}

func placeCashOrder(f *fixture) cashOrder {
	shoes := f.addProduct("Shoes", "100", 10)
	f.addToCart(shoes, 3)
	coupon := f.addCoupon("CASH5", domain.DiscountFixed, "5", "0", 5)
	_, err := f.carts.ApplyCoupon(f.ctx, f.userID, "CASH5")
	require.NoError(f.t, err)

	res, err := f.checkout.Checkout(f.ctx, f.userID, CheckoutRequest{
		PaymentMethod:     domain.PaymentMethodCash,
		ShippingAddressID: f.addAddress(f.userID, "0"),
	})
	require.NoError(f.t, err)
	return cashOrder{order: res.Order, product: shoes, coupon: coupon}
}

func TestUpdateOrder_DeliveredCompletesAndPays(t *testing.T) {
	f := newFixture(t)
	co := placeCashOrder(f)

	order, err := f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{IsDelivered: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	assert.True(t, order.IsPaid)
	require.NotNil(t, order.DeliveredAt)
	firstDelivery := *order.DeliveredAt

	// completing again keeps the first delivery time
	order, err = f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{Status: statusPtr(domain.OrderStatusCompleted)})
	require.NoError(t, err)
	assert.True(t, firstDelivery.Equal(*order.DeliveredAt))

	require.Len(t, f.notifier.updated, 1, "a no-op update sends nothing")
	assert.Equal(t, true, f.notifier.updated[0]["is_delivered"])

	// stock was taken at checkout and is not taken again
	assert.Equal(t, 7, f.product(co.product).Stock)
	assert.Equal(t, 1, f.coupon(co.coupon.ID).UsedCount)
}

func TestUpdateOrder_CompletedCannotGoBack(t *testing.T) {
	f := newFixture(t)
	co := placeCashOrder(f)
	_, err := f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{Status: statusPtr(domain.OrderStatusCompleted)})
	require.NoError(t, err)

	_, err = f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{Status: statusPtr(domain.OrderStatusPending)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{Status: statusPtr(domain.OrderStatusCancelled)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.OrderStatusCompleted, f.storedOrder(co.order.ID).Status)
}

func TestUpdateOrder_CancelCashRestoresOnce(t *testing.T) {
	f := newFixture(t)
	co := placeCashOrder(f)
	assert.Equal(t, 7, f.product(co.product).Stock)

	order, err := f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{Status: statusPtr(domain.OrderStatusCancelled)})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)

	p := f.product(co.product)
	assert.Equal(t, 10, p.Stock)
	assert.Equal(t, 0, p.Sold)
	assert.Zero(t, f.coupon(co.coupon.ID).UsedCount)

	// cancelled orders are locked
	_, err = f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{Status: statusPtr(domain.OrderStatusCancelled)})
	assert.ErrorIs(t, err, domain.ErrOrderLocked)
	_, err = f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{IsDelivered: boolPtr(true)})
	assert.ErrorIs(t, err, domain.ErrOrderLocked)
	assert.Equal(t, 10, f.product(co.product).Stock)
}

func TestUpdateOrder_CancelCardLeavesInventory(t *testing.T) {
	f := newFixture(t)
	co := placeCardOrder(f)
	require.NoError(t, f.deliver("evt_1", payment.EventCheckoutCompleted, co.order.ID))
	assert.Equal(t, 3, f.product(co.product).Stock)

	_, err := f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{Status: statusPtr(domain.OrderStatusCancelled)})
	require.NoError(t, err)
	assert.Equal(t, 3, f.product(co.product).Stock)

	// the payment failure webhook is what reconciles it
	require.NoError(t, f.deliver("evt_2", payment.EventAsyncPaymentFailed, co.order.ID))
	assert.Equal(t, 5, f.product(co.product).Stock)
	assert.Zero(t, f.coupon(co.coupon.ID).UsedCount)
}

func TestUpdateOrder_CardCompletedByHandTakesStock(t *testing.T) {
	f := newFixture(t)
	co := placeCardOrder(f)

	_, err := f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{Status: statusPtr(domain.OrderStatusCompleted)})
	require.NoError(t, err)
	assert.Equal(t, 3, f.product(co.product).Stock)

	// the late webhook is a no-op
	require.NoError(t, f.deliver("evt_1", payment.EventCheckoutCompleted, co.order.ID))
	assert.Equal(t, 3, f.product(co.product).Stock)
}

func TestUpdateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	co := placeCashOrder(f)

	_, err := f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.orders.UpdateOrder(f.ctx, co.order.ID, domain.OrderUpdate{
		Status:      statusPtr(domain.OrderStatusCancelled),
		IsDelivered: boolPtr(true),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.orders.UpdateOrder(f.ctx, uuid.New(), domain.OrderUpdate{IsDelivered: boolPtr(true)})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	co := placeCashOrder(f)

	_, err := f.orders.CancelOrder(f.ctx, uuid.New(), co.order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	order, err := f.orders.CancelOrder(f.ctx, f.userID, co.order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.Equal(t, 10, f.product(co.product).Stock)

	_, err = f.orders.CancelOrder(f.ctx, f.userID, co.order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderLocked)
}

func TestCancelOrder_PaidOrderRejected(t *testing.T) {
	f := newFixture(t)
	co := placeCardOrder(f)
	require.NoError(t, f.deliver("evt_1", payment.EventCheckoutCompleted, co.order.ID))

	_, err := f.orders.CancelOrder(f.ctx, f.userID, co.order.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestGetAndListOrders(t *testing.T) {
	f := newFixture(t)
	co := placeCashOrder(f)

	order, err := f.orders.GetOrder(f.ctx, f.userID, co.order.ID)
	require.NoError(t, err)
	assert.Len(t, order.Items, 1)

	_, err = f.orders.GetOrder(f.ctx, uuid.New(), co.order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	mine, err := f.orders.ListUserOrders(f.ctx, f.userID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.orders.ListUserOrders(f.ctx, uuid.New(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	cash, err := f.orders.ListOrders(f.ctx, repository.OrderFilter{PaymentMethod: domain.PaymentMethodCash})
	require.NoError(t, err)
	assert.Len(t, cash, 1)

	_, err = f.orders.ListOrders(f.ctx, repository.OrderFilter{Status: "SHIPPED"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
