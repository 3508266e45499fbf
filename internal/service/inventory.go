package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/rs/zerolog"
)

// applyOrderEffects takes the order's items out of stock and counts its
// coupon. Each effect is applied at most once per order; the markers on
// the order record what is currently committed.
func applyOrderEffects(ctx context.Context, q repository.Querier, order *domain.Order, log zerolog.Logger) error {
	if !order.InventoryApplied {
		for _, it := range itemsInLockOrder(order.Items) {
			stock, err := q.AdjustStock(ctx, it.ProductID, -it.Quantity, it.Quantity)
			if errors.Is(err, repository.ErrProductNotFound) {
				log.Warn().Str("order_id", order.ID.String()).Str("product_id", it.ProductID.String()).
					Msg("product removed from catalog, stock not adjusted")
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to take stock for order %s: %w", order.ID, err)
			}
			if stock < 0 {
				log.Warn().Str("order_id", order.ID.String()).Str("product_id", it.ProductID.String()).
					Int("stock", stock).Msg("product oversold")
			}
		}
		order.InventoryApplied = true
	}

	if order.CouponID != nil && !order.CouponCounted {
		ok, err := q.IncrementCouponUsage(ctx, *order.CouponID)
		if err != nil {
			return fmt.Errorf("failed to count coupon for order %s: %w", order.ID, err)
		}
		if !ok {
			log.Warn().Str("order_id", order.ID.String()).Str("coupon_id", order.CouponID.String()).
				Msg("coupon usage limit reached, usage not counted")
		}
		order.CouponCounted = ok
	}
	return nil
}

// reverseOrderEffects undoes whatever applyOrderEffects committed.
func reverseOrderEffects(ctx context.Context, q repository.Querier, order *domain.Order, log zerolog.Logger) error {
	if order.InventoryApplied {
		for _, it := range itemsInLockOrder(order.Items) {
			_, err := q.AdjustStock(ctx, it.ProductID, it.Quantity, -it.Quantity)
			if errors.Is(err, repository.ErrProductNotFound) {
				log.Warn().Str("order_id", order.ID.String()).Str("product_id", it.ProductID.String()).
					Msg("product removed from catalog, stock not restored")
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to restore stock for order %s: %w", order.ID, err)
			}
		}
		order.InventoryApplied = false
	}

	if order.CouponID != nil && order.CouponCounted {
		if err := q.DecrementCouponUsage(ctx, *order.CouponID); err != nil {
			return fmt.Errorf("failed to release coupon for order %s: %w", order.ID, err)
		}
		order.CouponCounted = false
	}
	return nil
}

// itemsInLockOrder sorts by product id so concurrent orders lock product
// rows in the same order.
func itemsInLockOrder(items []domain.OrderItem) []domain.OrderItem {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b domain.OrderItem) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return sorted
}
