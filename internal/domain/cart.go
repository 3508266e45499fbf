package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	CouponID   *uuid.UUID      `json:"coupon_id,omitempty"`
	SubTotal   decimal.Decimal `json:"sub_total"`
	Discount   decimal.Decimal `json:"discount"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []CartItem      `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type CartItem struct {
	ID          uuid.UUID       `json:"id"`
	CartID      uuid.UUID       `json:"cart_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Color       *string         `json:"color,omitempty"`
	Size        *string         `json:"size,omitempty"`
	LineTotal   decimal.Decimal `json:"line_total"`
	AddedAt     time.Time       `json:"added_at"`
}

// NewEmptyCart is what a user without a stored cart sees.
func NewEmptyCart(userID uuid.UUID) *Cart {
	return &Cart{
		UserID:     userID,
		SubTotal:   decimal.Zero,
		Discount:   decimal.Zero,
		TotalPrice: decimal.Zero,
		Items:      []CartItem{},
	}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindItem returns the line holding the given product variant.
func (c *Cart) FindItem(productID uuid.UUID, color, size *string) *CartItem {
	for i := range c.Items {
		it := &c.Items[i]
		if it.ProductID == productID && sameOption(it.Color, color) && sameOption(it.Size, size) {
			return it
		}
	}
	return nil
}

func (c *Cart) ItemByID(itemID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// QuantityOf sums every variant line of a product.
func (c *Cart) QuantityOf(productID uuid.UUID) int {
	total := 0
	for _, it := range c.Items {
		if it.ProductID == productID {
			total += it.Quantity
		}
	}
	return total
}

// NormalizeOption turns blank variant values into "not supplied".
func NormalizeOption(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameOption(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
