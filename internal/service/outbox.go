package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outbox event types published on the order events topic.
const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderPaymentFailed = "order.payment_failed"
	EventOrderUpdated       = "order.updated"
)

type orderEvent struct {
	OrderID       uuid.UUID            `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	UserID        uuid.UUID            `json:"user_id"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	TotalPrice    decimal.Decimal      `json:"total_price"`
	Changes       domain.Changes       `json:"changes,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// writeOutbox records an order event in the caller's transaction.
func writeOutbox(ctx context.Context, q repository.Querier, order *domain.Order, eventType string, changes domain.Changes) error {
	payload, err := json.Marshal(orderEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		TotalPrice:    order.TotalPrice,
		Changes:       changes,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	if err := q.InsertOutboxEvent(ctx, order.ID, eventType, payload); err != nil {
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}
	return nil
}
