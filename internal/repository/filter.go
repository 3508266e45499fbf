package repository

import (
	"fmt"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// OrderFilter narrows order listings. Zero values mean "any".
type OrderFilter struct {
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	PaymentMethod domain.PaymentMethod
	UserID        uuid.UUID
	Page          int
	Limit         int
}

// Normalize clamps paging to sane bounds.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	return f
}

func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

func (f OrderFilter) Matches(o *domain.Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.PaymentMethod != "" && o.PaymentMethod != f.PaymentMethod {
		return false
	}
	if f.UserID != uuid.Nil && o.UserID != f.UserID {
		return false
	}
	return true
}

// where renders the filter as a SQL condition with positional arguments.
func (f OrderFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status", f.PaymentStatus)
	}
	if f.PaymentMethod != "" {
		add("payment_method", f.PaymentMethod)
	}
	if f.UserID != uuid.Nil {
		add("user_id", f.UserID)
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
