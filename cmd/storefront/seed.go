package main

import (
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Fixed ids so a local run can be driven with curl.
var (
	demoUserID    = uuid.MustParse("00000000-0000-4000-8000-000000000001")
	demoAddressID = uuid.MustParse("00000000-0000-4000-8000-0000000000a1")
)

func seedDemoCatalog(store *repository.MemoryStore, log zerolog.Logger) {
	sale := decimal.NewFromInt(35)
	products := []domain.Product{
		{
			ID:     uuid.MustParse("00000000-0000-4000-8000-0000000000b1"),
			Name:   "Running Shoes",
			Price:  decimal.NewFromInt(400),
			Stock:  20,
			Colors: []string{},
			Sizes:  []string{"40", "41", "42", "43"},
		},
		{
			ID:                 uuid.MustParse("00000000-0000-4000-8000-0000000000b2"),
			Name:               "Cotton Shirt",
			Price:              decimal.NewFromInt(45),
			PriceAfterDiscount: &sale,
			Stock:              50,
			Colors:             []string{"white", "navy"},
			Sizes:              []string{"S", "M", "L"},
		},
		{
			ID:     uuid.MustParse("00000000-0000-4000-8000-0000000000b3"),
			Name:   "Water Bottle",
			Price:  decimal.NewFromInt(12),
			Stock:  100,
			Colors: []string{},
			Sizes:  []string{},
		},
	}
	for _, p := range products {
		store.SaveProduct(p)
	}

	store.SaveAddress(domain.ShippingAddress{
		ID:         demoAddressID,
		OwnerID:    demoUserID,
		FullName:   "Demo Buyer",
		Phone:      "+10000000000",
		Street:     "1 Main St",
		PostalCode: "10001",
		City: domain.City{
			ID:            uuid.MustParse("00000000-0000-4000-8000-0000000000c1"),
			Name:          "Springfield",
			Country:       "US",
			ShippingPrice: decimal.NewFromInt(50),
		},
	})

	log.Info().
		Str("user_id", demoUserID.String()).
		Str("address_id", demoAddressID.String()).
		Int("products", len(products)).
		Msg("memory store seeded with demo catalog")
}
