package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	metadataOrderID = "orderId"
	metadataUserID  = "userId"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
	Breaker       circuitbreaker.Config
}

// stripeBackend is the slice of the Stripe client used here.
type stripeBackend interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewCoupon(params *stripe.CouponParams) (*stripe.Coupon, error)
}

type apiBackend struct {
	api *client.API
}

func (b apiBackend) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return b.api.CheckoutSessions.New(params)
}

func (b apiBackend) NewCoupon(params *stripe.CouponParams) (*stripe.Coupon, error) {
	return b.api.Coupons.New(params)
}

type StripeGateway struct {
	backend stripeBackend
	breaker *circuitbreaker.Breaker
	cfg     StripeConfig
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return newStripeGateway(apiBackend{api: sc}, cfg)
}

func newStripeGateway(backend stripeBackend, cfg StripeConfig) *StripeGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Breaker.IsSuccessful == nil {
		cfg.Breaker.IsSuccessful = isClientError
	}
	return &StripeGateway{
		backend: backend,
		breaker: circuitbreaker.New("stripe", cfg.Breaker),
		cfg:     cfg,
	}
}

// CreateCheckoutSession opens a hosted checkout page for an order. A
// discount becomes a single-use processor coupon so the charged total
// matches the order.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.OrderNumber),
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-session-" + req.OrderID.String())
	params.AddMetadata(metadataOrderID, req.OrderID.String())
	params.AddMetadata(metadataUserID, req.UserID.String())

	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.cfg.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(minorUnits(item.UnitAmount)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	if req.Discount.IsPositive() {
		couponID, err := g.createDiscount(ctx, req)
		if err != nil {
			return nil, domain.ErrPaymentSession.Wrap(err)
		}
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(couponID)}}
	}

	sess, err := circuitbreaker.Do(g.breaker, func() (*stripe.CheckoutSession, error) {
		return g.backend.NewCheckoutSession(params)
	})
	if err != nil {
		return nil, domain.ErrPaymentSession.Wrap(err)
	}
	if sess == nil || sess.ID == "" || sess.URL == "" {
		return nil, domain.ErrPaymentSession.WithMessage("payment processor returned no checkout url for order %s", req.OrderNumber)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) createDiscount(ctx context.Context, req SessionRequest) (string, error) {
	params := &stripe.CouponParams{
		AmountOff:      stripe.Int64(minorUnits(req.Discount)),
		Currency:       stripe.String(g.cfg.Currency),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
		Name:           stripe.String("Order " + req.OrderNumber),
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-coupon-" + req.OrderID.String())

	coupon, err := circuitbreaker.Do(g.breaker, func() (*stripe.Coupon, error) {
		return g.backend.NewCoupon(params)
	})
	if err != nil {
		return "", fmt.Errorf("create discount coupon: %w", err)
	}
	return coupon.ID, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, domain.ErrPaymentSignature.Wrap(err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if out.Type != EventCheckoutCompleted && out.Type != EventAsyncPaymentFailed {
		return out, nil
	}
	if event.Data == nil {
		return nil, domain.ErrValidation.WithMessage("payment event %s has no data", event.ID)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, domain.ErrValidation.WithMessage("malformed checkout session in event %s", event.ID)
	}
	out.SessionID = sess.ID
	out.OrderID = sess.Metadata[metadataOrderID]
	out.UserID = sess.Metadata[metadataUserID]
	return out, nil
}

// minorUnits converts an amount to cents.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// isClientError keeps rejected requests from tripping the breaker; only
// outages and throttling count as failures.
func isClientError(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 &&
			stripeErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}
