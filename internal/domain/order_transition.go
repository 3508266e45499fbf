package domain

import "time"

// OrderUpdate is an admin change request. Nil fields are left alone.
type OrderUpdate struct {
	Status      *OrderStatus `json:"status,omitempty"`
	IsDelivered *bool        `json:"is_delivered,omitempty"`
}

// Changes lists the fields an update actually modified, keyed by their JSON name.
type Changes map[string]any

// CanTransition reports whether an order may move from one status to another.
// Staying in a non-cancelled status is allowed.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to.Valid()
	case OrderStatusCompleted:
		return to == OrderStatusCompleted
	default:
		return false
	}
}

// ApplyUpdate moves the order according to u and returns what changed.
// Delivery implies completion and payment; completion implies delivery.
// The delivery timestamp is kept from the first time it was set.
func (o *Order) ApplyUpdate(u OrderUpdate, now time.Time) (Changes, error) {
	if o.Status == OrderStatusCancelled {
		return nil, ErrOrderLocked
	}
	if u.Status == nil && u.IsDelivered == nil {
		return nil, ErrValidation.WithMessage("status or is_delivered is required")
	}
	if u.Status != nil && !u.Status.Valid() {
		return nil, ErrValidation.WithMessage("unknown order status %q", *u.Status)
	}
	delivered := u.IsDelivered != nil && *u.IsDelivered
	if u.Status != nil && *u.Status == OrderStatusCancelled && delivered {
		return nil, ErrValidation.WithMessage("a cancelled order cannot be delivered")
	}
	if u.Status != nil && *u.Status == OrderStatusCompleted && u.IsDelivered != nil && !*u.IsDelivered {
		return nil, ErrValidation.WithMessage("a completed order is always delivered")
	}

	target := o.Status
	if u.Status != nil {
		target = *u.Status
	}
	if delivered {
		target = OrderStatusCompleted
	}
	if !CanTransition(o.Status, target) {
		return nil, ErrInvalidTransition.WithMessage("cannot move order from %s to %s", o.Status, target)
	}
	if u.IsDelivered != nil && !*u.IsDelivered && o.IsDelivered {
		return nil, ErrInvalidTransition.WithMessage("a delivered order cannot be marked undelivered")
	}

	before := *o
	switch target {
	case OrderStatusCompleted:
		o.markCompleted(now)
	case OrderStatusCancelled:
		o.Status = OrderStatusCancelled
	}
	changes := diff(&before, o)
	if len(changes) > 0 {
		o.UpdatedAt = now
	}
	return changes, nil
}

func (o *Order) markCompleted(now time.Time) {
	o.Status = OrderStatusCompleted
	o.MarkPaid()
	o.IsDelivered = true
	if o.DeliveredAt == nil {
		o.DeliveredAt = &now
	}
}

// MarkPaid records a settled payment.
func (o *Order) MarkPaid() {
	o.IsPaid = true
	o.PaymentStatus = PaymentStatusPaid
}

// MarkPaymentFailed cancels the order after the processor reported a failure.
func (o *Order) MarkPaymentFailed() {
	o.IsPaid = false
	o.PaymentStatus = PaymentStatusFailed
	o.Status = OrderStatusCancelled
	o.IsDelivered = false
	o.DeliveredAt = nil
}

func diff(before, after *Order) Changes {
	changes := Changes{}
	if before.Status != after.Status {
		changes["status"] = after.Status
	}
	if before.PaymentStatus != after.PaymentStatus {
		changes["payment_status"] = after.PaymentStatus
	}
	if before.IsPaid != after.IsPaid {
		changes["is_paid"] = after.IsPaid
	}
	if before.IsDelivered != after.IsDelivered {
		changes["is_delivered"] = after.IsDelivered
	}
	if before.DeliveredAt == nil && after.DeliveredAt != nil {
		changes["delivered_at"] = *after.DeliveredAt
	}
	return changes
}
