package domain

import (
	"errors"
	"fmt"
)

// Kind groups errors by the way callers are expected to react to them.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindPaymentSignature  Kind = "PAYMENT_SIGNATURE"
	KindPaymentSession    Kind = "PAYMENT_SESSION"
)

// Error is a business rule violation. Two errors match under errors.Is when
// their codes are equal, so sentinels below can be returned with a more
// specific message and still be recognised.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Available is the quantity that could still be added, set for
	// KindInsufficientStock only.
	Available int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy carrying a caller specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy carrying the underlying cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation           = newError(KindValidation, "VALIDATION_ERROR", "validation failed")
	ErrInvalidColor         = newError(KindValidation, "INVALID_COLOR", "invalid color")
	ErrInvalidSize          = newError(KindValidation, "INVALID_SIZE", "invalid size")
	ErrVariantRequired      = newError(KindValidation, "VARIANT_REQUIRED", "product variant is required")
	ErrInvalidQuantity      = newError(KindValidation, "INVALID_QUANTITY", "quantity must be at least 1")
	ErrInvalidDiscount      = newError(KindValidation, "INVALID_DISCOUNT", "discount exceeds the price")
	ErrInvalidPaymentMethod = newError(KindValidation, "INVALID_PAYMENT_METHOD", "unknown payment method")
	ErrEmptyCart            = newError(KindValidation, "EMPTY_CART", "cart is empty, nothing to checkout")
	ErrInvalidCoupon        = newError(KindValidation, "INVALID_COUPON", "coupon is invalid or expired")
	ErrCouponExhausted      = newError(KindValidation, "COUPON_EXHAUSTED", "coupon usage limit reached")
	ErrMinOrderNotMet       = newError(KindValidation, "MIN_ORDER_NOT_MET", "order total is below the coupon minimum")

	ErrProductNotFound = newError(KindNotFound, "PRODUCT_NOT_FOUND", "product not found")
	ErrItemNotFound    = newError(KindNotFound, "ITEM_NOT_FOUND", "cart item not found")
	ErrAddressNotFound = newError(KindNotFound, "ADDRESS_NOT_FOUND", "shipping address not found")
	ErrOrderNotFound   = newError(KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrCouponNotFound  = newError(KindNotFound, "COUPON_NOT_FOUND", "coupon not found")

	ErrCouponAlreadyApplied = newError(KindConflict, "COUPON_ALREADY_APPLIED", "a coupon is already applied to the cart")
	ErrCouponAlreadyExists  = newError(KindConflict, "COUPON_ALREADY_EXISTS", "coupon code already exists")
	ErrCheckoutInProgress   = newError(KindConflict, "CHECKOUT_IN_PROGRESS", "a checkout with this idempotency key is in progress")

	ErrInsufficientStock = newError(KindInsufficientStock, "INSUFFICIENT_STOCK", "insufficient stock")

	ErrInvalidTransition = newError(KindInvalidTransition, "INVALID_TRANSITION", "illegal order status transition")
	ErrOrderLocked       = newError(KindInvalidTransition, "ORDER_LOCKED", "cancelled orders cannot be modified")

	ErrPaymentSignature = newError(KindPaymentSignature, "PAYMENT_SIGNATURE", "invalid payment webhook signature")
	ErrPaymentSession   = newError(KindPaymentSession, "PAYMENT_SESSION", "could not create payment session")
)

// NewInsufficientStockError reports how many more units of product can be taken.
func NewInsufficientStockError(product string, available int) *Error {
	if available < 0 {
		available = 0
	}
	e := ErrInsufficientStock.WithMessage("only %d item(s) of %q left in stock", available, product)
	e.Available = available
	return e
}

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
