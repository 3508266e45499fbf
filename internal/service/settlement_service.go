package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SettlementService applies payment processor webhooks to orders.
type SettlementService struct {
	store         repository.Store
	carts         *CartService
	gateway       payment.Gateway
	notifications *Notifications
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

func NewSettlementService(
	store repository.Store,
	carts *CartService,
	gateway payment.Gateway,
	notifications *Notifications,
	m *metrics.Metrics,
	log zerolog.Logger) *SettlementService {

	return &SettlementService{
		store:         store,
		carts:         carts,
		gateway:       gateway,
		notifications: notifications,
		metrics:       m,
		log:           log.With().Str("component", "settlement_service").Logger(),
	}
}

type settlement struct {
	order     *domain.Order
	changes   domain.Changes
	duplicate bool
}

// HandleWebhook verifies and applies one processor event. Nothing in the
// payload is read before the signature checks out. Redeliveries of an
// event, and events that no longer match the order's state, change nothing.
func (s *SettlementService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		s.metrics.ObserveWebhook("unverified", "rejected")
		return err
	}

	log := s.log.With().Str("event_id", event.ID).Str("event_type", event.Type).Logger()
	if event.Type != payment.EventCheckoutCompleted && event.Type != payment.EventAsyncPaymentFailed {
		s.metrics.ObserveWebhook(event.Type, "ignored")
		log.Debug().Msg("ignoring payment event")
		return nil
	}

	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		s.metrics.ObserveWebhook(event.Type, "rejected")
		return domain.ErrValidation.WithMessage("payment event %s carries no valid order id", event.ID)
	}
	log = log.With().Str("order_id", orderID.String()).Logger()

	var res settlement
	err = s.store.WithTx(ctx, func(q repository.Querier) error {
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		fresh, err := q.RecordPaymentEvent(ctx, event.ID, event.Type, orderID)
		if err != nil {
			return fmt.Errorf("failed to record payment event: %w", err)
		}
		if !fresh {
			res.duplicate = true
			return nil
		}
		if event.SessionID != "" && order.PaymentSessionID != "" && event.SessionID != order.PaymentSessionID {
			log.Warn().Str("session_id", event.SessionID).Msg("payment event for a different session than the order's")
		}

		res.order = order
		if event.Type == payment.EventCheckoutCompleted {
			res.changes, err = s.completePayment(ctx, q, order, log)
		} else {
			res.changes, err = s.failPayment(ctx, q, order, log)
		}
		return err
	})
	if err != nil {
		s.metrics.ObserveWebhook(event.Type, "error")
		return err
	}

	switch {
	case res.duplicate:
		s.metrics.ObserveWebhook(event.Type, "duplicate")
		log.Info().Msg("payment event already processed")
	case len(res.changes) == 0:
		s.metrics.ObserveWebhook(event.Type, "noop")
		log.Info().Str("status", res.order.Status.String()).Msg("order state does not allow this payment event")
	case event.Type == payment.EventCheckoutCompleted:
		s.metrics.ObserveWebhook(event.Type, "processed")
		log.Info().Msg("card payment settled")
		s.carts.InvalidateCache(res.order.UserID)
		s.notifications.NewOrder(ctx, res.order)
	default:
		s.metrics.ObserveWebhook(event.Type, "processed")
		log.Info().Msg("card payment failed, order cancelled")
		s.notifications.OrderUpdated(ctx, res.order, res.changes)
	}
	return nil
}

// completePayment settles a pending card order: the buyer's cart is
// emptied and the order's stock and coupon effects are committed.
func (s *SettlementService) completePayment(ctx context.Context, q repository.Querier, order *domain.Order, log zerolog.Logger) (domain.Changes, error) {
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		if order.Status == domain.OrderStatusCancelled {
			log.Warn().Msg("payment completed for a cancelled order, needs a manual refund")
		}
		return nil, nil
	}

	cart, err := q.GetCartForUpdate(ctx, order.UserID)
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	default:
		if err := emptyCart(ctx, q, cart); err != nil {
			return nil, err
		}
		if err := q.SaveCartTotals(ctx, cart); err != nil {
			return nil, fmt.Errorf("failed to save cart totals: %w", err)
		}
	}

	order.MarkPaid()
	if err := applyOrderEffects(ctx, q, order, log); err != nil {
		return nil, err
	}
	if err := q.UpdateOrderState(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	changes := domain.Changes{"payment_status": order.PaymentStatus, "is_paid": true}
	return changes, writeOutbox(ctx, q, order, EventOrderPaid, changes)
}

// failPayment cancels the order and reverses any effects it still holds.
// A completed order is final and is left for manual handling.
func (s *SettlementService) failPayment(ctx context.Context, q repository.Querier, order *domain.Order, log zerolog.Logger) (domain.Changes, error) {
	switch {
	case order.Status == domain.OrderStatusCancelled:
		if !order.InventoryApplied && !order.CouponCounted {
			return nil, nil
		}
	case !domain.CanTransition(order.Status, domain.OrderStatusCancelled):
		log.Warn().Str("status", order.Status.String()).Msg("payment failed for a completed order, needs manual handling")
		return nil, nil
	}

	before := *order
	order.MarkPaymentFailed()
	if err := reverseOrderEffects(ctx, q, order, s.log); err != nil {
		return nil, err
	}
	if err := q.UpdateOrderState(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	changes := domain.Changes{"payment_status": order.PaymentStatus}
	if before.Status != order.Status {
		changes["status"] = order.Status
	}
	if before.IsPaid {
		changes["is_paid"] = false
	}
	return changes, writeOutbox(ctx, q, order, EventOrderPaymentFailed, changes)
}
