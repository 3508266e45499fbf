package service

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/notify"
	"github.com/rs/zerolog"
)

// Notifications sends best effort order notifications after a commit. A
// failure is logged and never reaches the caller.
type Notifications struct {
	notifier notify.Notifier
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewNotifications(notifier notify.Notifier, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *Notifications {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifications{notifier: notifier, timeout: timeout, metrics: m, log: log}
}

func (n *Notifications) NewOrder(ctx context.Context, order *domain.Order) {
	n.send(ctx, notify.KindNewOrder, order, func(ctx context.Context) error {
		return n.notifier.NotifyNewOrder(ctx, order)
	})
}

func (n *Notifications) OrderUpdated(ctx context.Context, order *domain.Order, changes domain.Changes) {
	n.send(ctx, notify.KindOrderUpdated, order, func(ctx context.Context) error {
		return n.notifier.NotifyOrderUpdated(ctx, order, changes)
	})
}

func (n *Notifications) send(ctx context.Context, kind string, order *domain.Order, fn func(context.Context) error) {
	if n == nil || n.notifier == nil {
		return
	}
	// the request may already be gone; the notification should still go out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		n.metrics.ObserveNotification(kind, "error")
		n.log.Error().Err(err).
			Str("order_id", order.ID.String()).
			Str("kind", kind).
			Msg("failed to send order notification")
		return
	}
	n.metrics.ObserveNotification(kind, "sent")
}
