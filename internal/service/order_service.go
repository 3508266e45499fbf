package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type OrderService struct {
	store         repository.Store
	notifications *Notifications
	log           zerolog.Logger
	now           func() time.Time
}

func NewOrderService(store repository.Store, notifications *Notifications, log zerolog.Logger) *OrderService {
	return &OrderService{
		store:         store,
		notifications: notifications,
		log:           log.With().Str("component", "order_service").Logger(),
		now:           time.Now,
	}
}

// UpdateOrder applies an admin status or delivery change.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID uuid.UUID, u domain.OrderUpdate) (*domain.Order, error) {
	return s.transition(ctx, orderID, u, nil)
}

// CancelOrder lets buyers cancel their own orders while they are pending
// and unpaid. Orders of other users are reported as not found.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	cancelled := domain.OrderStatusCancelled
	return s.transition(ctx, orderID, domain.OrderUpdate{Status: &cancelled}, func(o *domain.Order) error {
		if o.UserID != userID {
			return domain.ErrOrderNotFound
		}
		if o.Status == domain.OrderStatusCancelled {
			return domain.ErrOrderLocked
		}
		if o.Status != domain.OrderStatusPending || o.IsPaid {
			return domain.ErrInvalidTransition.WithMessage("only pending unpaid orders can be cancelled")
		}
		return nil
	})
}

func (s *OrderService) transition(ctx context.Context, orderID uuid.UUID, u domain.OrderUpdate, allow func(*domain.Order) error) (*domain.Order, error) {
	var (
		order   *domain.Order
		changes domain.Changes
	)
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		var err error
		order, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if allow != nil {
			if err := allow(order); err != nil {
				return err
			}
		}

		changes, err = order.ApplyUpdate(u, s.now())
		if err != nil || len(changes) == 0 {
			return err
		}

		switch {
		case order.Status == domain.OrderStatusCancelled && order.PaymentMethod == domain.PaymentMethodCash:
			// card orders are reconciled by the payment failed webhook only
			if err := reverseOrderEffects(ctx, q, order, s.log); err != nil {
				return err
			}
		case order.Status == domain.OrderStatusCompleted:
			// settled by hand before the payment webhook arrived
			if err := applyOrderEffects(ctx, q, order, s.log); err != nil {
				return err
			}
		}

		if err := q.UpdateOrderState(ctx, order); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		return writeOutbox(ctx, q, order, EventOrderUpdated, changes)
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.log.Info().Str("order_id", order.ID.String()).Interface("changes", changes).Msg("order updated")
		s.notifications.OrderUpdated(ctx, order, changes)
	}
	return order, nil
}

// GetOrder returns one of the user's orders.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Order, error) {
	return s.ListOrders(ctx, repository.OrderFilter{UserID: userID, Page: page, Limit: limit})
}

func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrValidation.WithMessage("unknown order status %q", filter.Status)
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, domain.ErrValidation.WithMessage("unknown payment status %q", filter.PaymentStatus)
	}
	if filter.PaymentMethod != "" && !filter.PaymentMethod.Valid() {
		return nil, domain.ErrValidation.WithMessage("unknown payment method %q", filter.PaymentMethod)
	}
	return s.store.ListOrders(ctx, filter.Normalize())
}
