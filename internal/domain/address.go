package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type City struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Country       string          `json:"country"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
}

// ShippingAddress is an entry of the buyer's address book.
type ShippingAddress struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone"`
	Street     string    `json:"street"`
	Details    string    `json:"details"`
	PostalCode string    `json:"postal_code"`
	City       City      `json:"city"`
}

// AddressSnapshot is the shipping address copied into an order by value so
// later address book edits do not change placed orders.
type AddressSnapshot struct {
	FullName      string          `json:"full_name"`
	Phone         string          `json:"phone"`
	Street        string          `json:"street"`
	Details       string          `json:"details,omitempty"`
	PostalCode    string          `json:"postal_code"`
	City          string          `json:"city"`
	Country       string          `json:"country"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
}

func (a *ShippingAddress) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		FullName:      a.FullName,
		Phone:         a.Phone,
		Street:        a.Street,
		Details:       a.Details,
		PostalCode:    a.PostalCode,
		City:          a.City.Name,
		Country:       a.City.Country,
		ShippingPrice: a.City.ShippingPrice,
	}
}
