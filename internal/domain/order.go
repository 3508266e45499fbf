package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "CASH"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodCreditCard
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	return s == OrderStatusPending || s == OrderStatusCompleted || s == OrderStatusCancelled
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid || s == PaymentStatusFailed
}

type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Color       *string         `json:"color,omitempty"`
	Size        *string         `json:"size,omitempty"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	OrderNumber      string          `json:"order_number"`
	UserID           uuid.UUID       `json:"user_id"`
	SubTotal         decimal.Decimal `json:"sub_total"`
	Discount         decimal.Decimal `json:"discount"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	Status           OrderStatus     `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	IsPaid           bool            `json:"is_paid"`
	IsDelivered      bool            `json:"is_delivered"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	ShippingAddress  AddressSnapshot `json:"shipping_address"`
	CouponID         *uuid.UUID      `json:"coupon_id,omitempty"`
	PaymentSessionID string          `json:"payment_session_id,omitempty"`
	// InventoryApplied is true while the order's stock and sold effects are
	// committed. CouponCounted does the same for the coupon usage counter.
	InventoryApplied bool        `json:"-"`
	CouponCounted    bool        `json:"-"`
	Items            []OrderItem `json:"items"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// NewOrderFromCart snapshots a cart into a pending order. The order has no
// ID yet; it is assigned on insert.
func NewOrderFromCart(cart *Cart, address *ShippingAddress, method PaymentMethod) *Order {
	shipping := address.City.ShippingPrice
	order := &Order{
		UserID:          cart.UserID,
		SubTotal:        cart.SubTotal,
		Discount:        cart.Discount,
		ShippingCost:    shipping,
		TotalPrice:      cart.TotalPrice.Add(shipping),
		PaymentMethod:   method,
		Status:          OrderStatusPending,
		PaymentStatus:   PaymentStatusPending,
		ShippingAddress: address.Snapshot(),
		CouponID:        cart.CouponID,
		Items:           make([]OrderItem, 0, len(cart.Items)),
	}
	for _, it := range cart.Items {
		order.Items = append(order.Items, OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Price:       it.UnitPrice,
			Quantity:    it.Quantity,
			Color:       it.Color,
			Size:        it.Size,
			LineTotal:   it.LineTotal,
		})
	}
	return order
}

// GenerateOrderNumber builds ORD-YYYYMMDD-<user>-<order>, where the last two
// parts are the first eight hex digits of the ids in upper case.
func GenerateOrderNumber(orderID, userID uuid.UUID, createdAt time.Time) string {
	return fmt.Sprintf("ORD-%s-%s-%s", createdAt.UTC().Format("20060102"), shortID(userID), shortID(orderID))
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
