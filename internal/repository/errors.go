package repository

import (
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"github.com/lib/pq"
)

var (
	// ErrCartNotFound means the user never had a cart. Carts are created lazily.
	ErrCartNotFound = errors.New("cart not found")

	ErrProductNotFound     = domain.ErrProductNotFound
	ErrItemNotFound        = domain.ErrItemNotFound
	ErrAddressNotFound     = domain.ErrAddressNotFound
	ErrCouponNotFound      = domain.ErrCouponNotFound
	ErrOrderNotFound       = domain.ErrOrderNotFound
	ErrDuplicateCouponCode = domain.ErrCouponAlreadyExists
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
