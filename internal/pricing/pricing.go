// Package pricing holds the money arithmetic shared by carts and orders.
package pricing

import (
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ApplyDiscount returns the price left after applying a discount to base.
func ApplyDiscount(kind domain.DiscountType, value, base decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, domain.ErrInvalidDiscount.WithMessage("discount value must not be negative")
	}

	var result decimal.Decimal
	switch kind {
	case domain.DiscountPercentage:
		result = base.Sub(base.Mul(value).Div(hundred))
	case domain.DiscountFixed:
		if value.GreaterThan(base) {
			return decimal.Zero, domain.ErrInvalidDiscount.WithMessage("fixed discount %s exceeds price %s", value, base)
		}
		result = base.Sub(value)
	default:
		return decimal.Zero, domain.ErrInvalidDiscount.WithMessage("unknown discount type %q", kind)
	}

	if result.IsNegative() {
		return decimal.Zero, domain.ErrInvalidDiscount
	}
	return result, nil
}

// DiscountAmount is how much ApplyDiscount takes off base, in cents precision.
func DiscountAmount(kind domain.DiscountType, value, base decimal.Decimal) (decimal.Decimal, error) {
	discounted, err := ApplyDiscount(kind, value, base)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Sub(discounted).Round(2), nil
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Recalculate recomputes line and cart totals from the items. A coupon that
// no longer applies to the cart is detached; the return value reports that.
func Recalculate(cart *domain.Cart, coupon *domain.Coupon) (detached bool) {
	subTotal := decimal.Zero
	for i := range cart.Items {
		it := &cart.Items[i]
		it.LineTotal = LineTotal(it.UnitPrice, it.Quantity)
		subTotal = subTotal.Add(it.LineTotal)
	}
	cart.SubTotal = subTotal
	cart.Discount = decimal.Zero

	if cart.CouponID != nil {
		discount, ok := couponDiscount(cart, coupon)
		if ok {
			cart.Discount = discount
		} else {
			cart.CouponID = nil
			detached = true
		}
	}

	cart.TotalPrice = cart.SubTotal.Sub(cart.Discount)
	return detached
}

func couponDiscount(cart *domain.Cart, coupon *domain.Coupon) (decimal.Decimal, bool) {
	if coupon == nil || coupon.ID != *cart.CouponID || cart.IsEmpty() {
		return decimal.Zero, false
	}
	if cart.SubTotal.LessThan(coupon.MinOrderValue) {
		return decimal.Zero, false
	}
	discount, err := DiscountAmount(coupon.DiscountType, coupon.DiscountValue, cart.SubTotal)
	if err != nil {
		return decimal.Zero, false
	}
	return discount, true
}
