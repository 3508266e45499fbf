package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestError_IsMatchesByCode(t *testing.T) {
	err := ErrItemNotFound.WithMessage("item %s not in cart", "abc")

	assert.True(t, errors.Is(err, ErrItemNotFound))
	assert.False(t, errors.Is(err, ErrOrderNotFound))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrItemNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestNewInsufficientStockError(t *testing.T) {
	err := NewInsufficientStockError("Tee", -2)

	var domainErr *Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, 0, domainErr.Available)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Contains(t, err.Error(), "Tee")
}

func TestProduct_ValidateVariant(t *testing.T) {
	p := &Product{Colors: []string{"red", "blue"}}

	assert.NoError(t, p.ValidateVariant(strPtr("red"), nil))
	assert.ErrorIs(t, p.ValidateVariant(strPtr("green"), nil), ErrInvalidColor)
	assert.ErrorIs(t, p.ValidateVariant(nil, nil), ErrVariantRequired)
	assert.ErrorIs(t, p.ValidateVariant(strPtr("red"), strPtr("XL")), ErrInvalidSize)
}

func TestProduct_EffectivePrice(t *testing.T) {
	discounted := decimal.NewFromInt(80)
	p := &Product{Price: decimal.NewFromInt(100)}
	assert.True(t, decimal.NewFromInt(100).Equal(p.EffectivePrice()))

	p.PriceAfterDiscount = &discounted
	assert.True(t, discounted.Equal(p.EffectivePrice()))
}

func TestCoupon_Validate(t *testing.T) {
	now := time.Now()
	c := &Coupon{Code: "SAVE10", IsActive: true, MaxUsage: 2, UsedCount: 1, ExpiredAt: now.Add(time.Hour)}
	assert.NoError(t, c.Validate(now))

	c.UsedCount = 2
	assert.ErrorIs(t, c.Validate(now), ErrCouponExhausted)

	c.UsedCount = 0
	c.ExpiredAt = now.Add(-time.Minute)
	assert.ErrorIs(t, c.Validate(now), ErrInvalidCoupon)

	c.ExpiredAt = now.Add(time.Hour)
	c.IsActive = false
	assert.ErrorIs(t, c.Validate(now), ErrInvalidCoupon)
}

func TestCart_FindItemTreatsMissingVariantsAsEqual(t *testing.T) {
	pid := uuid.New()
	cart := &Cart{Items: []CartItem{
		{ID: uuid.New(), ProductID: pid, Quantity: 1},
		{ID: uuid.New(), ProductID: pid, Color: strPtr("red"), Quantity: 2},
	}}

	assert.Equal(t, cart.Items[0].ID, cart.FindItem(pid, nil, nil).ID)
	assert.Equal(t, cart.Items[1].ID, cart.FindItem(pid, strPtr("red"), nil).ID)
	assert.Nil(t, cart.FindItem(pid, strPtr("blue"), nil))
	assert.Equal(t, 3, cart.QuantityOf(pid))
}

func TestNormalizeOption(t *testing.T) {
	assert.Nil(t, NormalizeOption(nil))
	assert.Nil(t, NormalizeOption(strPtr("  ")))
	assert.Equal(t, "red", *NormalizeOption(strPtr(" red ")))
	assert.Equal(t, "SAVE10", NormalizeCouponCode(" save10 "))
}
