// Package notify tells the mailer about new and updated orders.
package notify

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	KindNewOrder     = "order.new"
	KindOrderUpdated = "order.updated"
)

type Notifier interface {
	NotifyNewOrder(ctx context.Context, order *domain.Order) error
	NotifyOrderUpdated(ctx context.Context, order *domain.Order, changes domain.Changes) error
}

// Message is the payload the mailer consumes.
type Message struct {
	Kind            string                 `json:"kind"`
	OrderID         uuid.UUID              `json:"order_id"`
	OrderNumber     string                 `json:"order_number"`
	UserID          uuid.UUID              `json:"user_id"`
	Status          domain.OrderStatus     `json:"status"`
	PaymentStatus   domain.PaymentStatus   `json:"payment_status"`
	PaymentMethod   domain.PaymentMethod   `json:"payment_method"`
	TotalPrice      decimal.Decimal        `json:"total_price"`
	ShippingAddress domain.AddressSnapshot `json:"shipping_address"`
	Items           []domain.OrderItem     `json:"items,omitempty"`
	Changes         domain.Changes         `json:"changes,omitempty"`
	SentAt          time.Time              `json:"sent_at"`
}

func newMessage(kind string, order *domain.Order, changes domain.Changes) Message {
	return Message{
		Kind:            kind,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		TotalPrice:      order.TotalPrice,
		ShippingAddress: order.ShippingAddress,
		Items:           order.Items,
		Changes:         changes,
		SentAt:          time.Now().UTC(),
	}
}

// LogNotifier writes notifications to the log. It stands in for Kafka when
// no brokers are configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) NotifyNewOrder(_ context.Context, order *domain.Order) error {
	n.log.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("total", order.TotalPrice.StringFixed(2)).
		Msg("new order")
	return nil
}

func (n *LogNotifier) NotifyOrderUpdated(_ context.Context, order *domain.Order, changes domain.Changes) error {
	n.log.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Interface("changes", changes).
		Msg("order updated")
	return nil
}
