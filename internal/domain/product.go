package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is owned by the catalog. Only Stock and Sold are changed here.
type Product struct {
	ID                 uuid.UUID        `json:"id"`
	Name               string           `json:"name"`
	Price              decimal.Decimal  `json:"price"`
	PriceAfterDiscount *decimal.Decimal `json:"price_after_discount,omitempty"`
	Stock              int              `json:"stock"`
	Sold               int              `json:"sold"`
	Colors             []string         `json:"colors"`
	Sizes              []string         `json:"sizes"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// EffectivePrice is the price a buyer pays when adding the product to a cart.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.PriceAfterDiscount != nil && p.PriceAfterDiscount.IsPositive() {
		return *p.PriceAfterDiscount
	}
	return p.Price
}

// ValidateVariant checks color and size against the product option sets.
// A dimension the product defines must be supplied; one it does not define
// must be left empty.
func (p *Product) ValidateVariant(color, size *string) error {
	if err := checkOption("color", p.Colors, color, ErrInvalidColor); err != nil {
		return err
	}
	return checkOption("size", p.Sizes, size, ErrInvalidSize)
}

func checkOption(name string, options []string, value *string, invalid *Error) error {
	if value == nil {
		if len(options) > 0 {
			return ErrVariantRequired.WithMessage("%s must be one of %v", name, options)
		}
		return nil
	}
	if !slices.Contains(options, *value) {
		return invalid.WithMessage("%s %q is not available", name, *value)
	}
	return nil
}
