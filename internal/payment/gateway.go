// Package payment talks to the card payment processor.
package payment

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Processor event types the storefront reacts to.
const (
	EventCheckoutCompleted  = "checkout.session.completed"
	EventAsyncPaymentFailed = "checkout.session.async_payment_failed"
)

type LineItem struct {
	Name       string
	UnitAmount decimal.Decimal
	Quantity   int
}

type SessionRequest struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	OrderNumber string
	Items       []LineItem
	// Discount is taken off the sum of Items.
	Discount decimal.Decimal
}

type Session struct {
	ID  string
	URL string
}

// WebhookEvent is a verified processor notification.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	OrderID   string
	UserID    string
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	// VerifyWebhook checks the signature before anything in payload is read.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// Disabled rejects card payments. It is used when no processor is configured.
type Disabled struct{}

func (Disabled) CreateCheckoutSession(context.Context, SessionRequest) (*Session, error) {
	return nil, domain.ErrPaymentSession.WithMessage("card payments are not configured")
}

func (Disabled) VerifyWebhook([]byte, string) (*WebhookEvent, error) {
	return nil, domain.ErrPaymentSignature.WithMessage("card payments are not configured")
}
