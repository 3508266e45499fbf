package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type AddItemRequest struct {
	ProductID uuid.UUID
	// Quantity defaults to 1.
	Quantity int
	Color    *string
	Size     *string
}

type CartService struct {
	store repository.Store
	cache cache.CartCache
	sfg   singleflight.Group // Prevents cache stampede
	log   zerolog.Logger
	now   func() time.Time
}

func NewCartService(store repository.Store, cartCache cache.CartCache, log zerolog.Logger) *CartService {
	if cartCache == nil {
		cartCache = cache.NoopCache{}
	}
	return &CartService{
		store: store,
		cache: cartCache,
		log:   log.With().Str("component", "cart_service").Logger(),
		now:   time.Now,
	}
}

// GetCart returns the user's cart. A user who never had one sees an empty
// cart that is not persisted.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID.String(), func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("cache get error")
		}

		cart, err = s.store.GetCartByUser(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.NewEmptyCart(userID), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get cart: %w", err)
		}

		if err := s.cache.Set(ctx, userID, cart); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("cache set error")
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (s *CartService) AddItem(ctx context.Context, userID uuid.UUID, req AddItemRequest) (*domain.Cart, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	color, size := domain.NormalizeOption(req.Color), domain.NormalizeOption(req.Size)

	return s.mutate(ctx, userID, func(q repository.Querier, cart *domain.Cart) error {
		product, err := q.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if err := product.ValidateVariant(color, size); err != nil {
			return err
		}

		inCart := cart.QuantityOf(product.ID)
		if inCart+quantity > product.Stock {
			return domain.NewInsufficientStockError(product.Name, product.Stock-inCart)
		}

		if existing := cart.FindItem(product.ID, color, size); existing != nil {
			merged := existing.Quantity + quantity
			return q.UpdateCartItemQuantity(ctx, existing.ID, merged, pricing.LineTotal(existing.UnitPrice, merged))
		}

		unitPrice := product.EffectivePrice()
		return q.InsertCartItem(ctx, &domain.CartItem{
			CartID:      cart.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   unitPrice,
			Quantity:    quantity,
			Color:       color,
			Size:        size,
			LineTotal:   pricing.LineTotal(unitPrice, quantity),
		})
	})
}

func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, func(q repository.Querier, cart *domain.Cart) error {
		item := cart.ItemByID(itemID)
		if item == nil {
			return domain.ErrItemNotFound
		}
		product, err := q.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if quantity > product.Stock {
			return domain.NewInsufficientStockError(product.Name, product.Stock)
		}
		return q.UpdateCartItemQuantity(ctx, item.ID, quantity, pricing.LineTotal(item.UnitPrice, quantity))
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Cart, error) {
	return s.mutate(ctx, userID, func(q repository.Querier, cart *domain.Cart) error {
		if cart.ItemByID(itemID) == nil {
			return domain.ErrItemNotFound
		}
		return q.DeleteCartItem(ctx, itemID)
	})
}

// ApplyCoupon attaches a coupon to the cart. Usage is only counted when an
// order is settled.
func (s *CartService) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*domain.Cart, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return nil, domain.ErrInvalidCoupon
	}
	return s.mutate(ctx, userID, func(q repository.Querier, cart *domain.Cart) error {
		coupon, err := q.GetCouponByCode(ctx, code)
		if errors.Is(err, repository.ErrCouponNotFound) {
			return domain.ErrInvalidCoupon.WithMessage("coupon %q is invalid or expired", code)
		}
		if err != nil {
			return err
		}
		if err := coupon.Validate(s.now()); err != nil {
			return err
		}
		if cart.CouponID != nil {
			return domain.ErrCouponAlreadyApplied
		}
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		pricing.Recalculate(cart, nil)
		if cart.SubTotal.LessThan(coupon.MinOrderValue) {
			return domain.ErrMinOrderNotMet.WithMessage("order total must be at least %s to use coupon %q",
				coupon.MinOrderValue.StringFixed(2), coupon.Code)
		}
		if _, err := pricing.ApplyDiscount(coupon.DiscountType, coupon.DiscountValue, cart.SubTotal); err != nil {
			return err
		}
		cart.CouponID = &coupon.ID
		return nil
	})
}

// RemoveCoupon detaches the cart's coupon. It is a no-op without one.
func (s *CartService) RemoveCoupon(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return s.mutate(ctx, userID, func(_ repository.Querier, cart *domain.Cart) error {
		cart.CouponID = nil
		return nil
	})
}

func (s *CartService) ClearCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return s.mutate(ctx, userID, func(q repository.Querier, cart *domain.Cart) error {
		return emptyCart(ctx, q, cart)
	})
}

func (s *CartService) InvalidateCache(userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("cache invalidate error")
	}
}

// mutate runs fn and the recalculation that follows it in one transaction
// on the locked cart, creating the cart first when needed.
func (s *CartService) mutate(ctx context.Context, userID uuid.UUID, fn func(q repository.Querier, cart *domain.Cart) error) (*domain.Cart, error) {
	var result *domain.Cart
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		cart, err := lockCart(ctx, q, userID)
		if err != nil {
			return err
		}
		if err := fn(q, cart); err != nil {
			return err
		}
		result, err = recalculateCart(ctx, q, cart)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateCache(userID)
	return result, nil
}

func lockCart(ctx context.Context, q repository.Querier, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := q.GetCartForUpdate(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		if err := q.CreateCart(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to create cart: %w", err)
		}
		cart, err = q.GetCartForUpdate(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	return cart, nil
}

// recalculateCart reloads the items and stores fresh totals.
func recalculateCart(ctx context.Context, q repository.Querier, cart *domain.Cart) (*domain.Cart, error) {
	items, err := q.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	cart.Items = items

	var coupon *domain.Coupon
	if cart.CouponID != nil {
		coupon, err = q.GetCoupon(ctx, *cart.CouponID)
		if err != nil && !errors.Is(err, repository.ErrCouponNotFound) {
			return nil, err
		}
	}
	pricing.Recalculate(cart, coupon)

	if err := q.SaveCartTotals(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to save cart totals: %w", err)
	}
	return cart, nil
}

// emptyCart removes every line and the coupon. Callers recalculate or save
// totals afterwards.
func emptyCart(ctx context.Context, q repository.Querier, cart *domain.Cart) error {
	if err := q.DeleteCartItems(ctx, cart.ID); err != nil {
		return fmt.Errorf("failed to empty cart: %w", err)
	}
	cart.Items = []domain.CartItem{}
	cart.CouponID = nil
	pricing.Recalculate(cart, nil)
	return nil
}
