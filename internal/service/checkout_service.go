package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const staleOrderBatch = 100

type CheckoutRequest struct {
	PaymentMethod     domain.PaymentMethod
	ShippingAddressID uuid.UUID
	// IdempotencyKey, when set, makes a retried request return the first
	// result instead of placing a second order.
	IdempotencyKey string
}

type CheckoutResult struct {
	Order       *domain.Order `json:"order"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
}

type CheckoutService struct {
	store         repository.Store
	carts         *CartService
	gateway       payment.Gateway
	notifications *Notifications
	idempotency   cache.IdempotencyStore
	metrics       *metrics.Metrics
	staleAge      time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

type CheckoutOption func(*CheckoutService)

func WithIdempotency(store cache.IdempotencyStore) CheckoutOption {
	return func(s *CheckoutService) { s.idempotency = store }
}

func WithCheckoutMetrics(m *metrics.Metrics) CheckoutOption {
	return func(s *CheckoutService) { s.metrics = m }
}

// WithStaleOrderAge sets how long a card order may wait for its payment
// session before AbandonStaleOrders cancels it.
func WithStaleOrderAge(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) { s.staleAge = d }
}

func NewCheckoutService(
	store repository.Store,
	carts *CartService,
	gateway payment.Gateway,
	notifications *Notifications,
	log zerolog.Logger,
	opts ...CheckoutOption) *CheckoutService {

	s := &CheckoutService{
		store:         store,
		carts:         carts,
		gateway:       gateway,
		notifications: notifications,
		staleAge:      15 * time.Minute,
		log:           log.With().Str("component", "checkout_service").Logger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout turns the user's cart into an order. CASH orders settle at once;
// CREDIT_CARD orders return the processor's checkout page and settle when
// the payment webhook arrives.
func (s *CheckoutService) Checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*CheckoutResult, error) {
	if !req.PaymentMethod.Valid() {
		return nil, domain.ErrInvalidPaymentMethod.WithMessage("unknown payment method %q", req.PaymentMethod)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" || s.idempotency == nil {
		return s.observedCheckout(ctx, userID, req)
	}
	return s.checkoutOnce(ctx, userID, req, userID.String()+":"+key)
}

func (s *CheckoutService) checkoutOnce(ctx context.Context, userID uuid.UUID, req CheckoutRequest, key string) (*CheckoutResult, error) {
	reserved, err := s.idempotency.Reserve(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("idempotency store unavailable, checking out without it")
		return s.observedCheckout(ctx, userID, req)
	}

	if !reserved {
		data, err := s.idempotency.Load(ctx, key)
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domain.ErrCheckoutInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load checkout result: %w", err)
		}
		var res CheckoutResult
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("failed to decode checkout result: %w", err)
		}
		s.metrics.ObserveCheckout(string(req.PaymentMethod), "replayed")
		return &res, nil
	}

	res, err := s.observedCheckout(ctx, userID, req)
	storeCtx := context.WithoutCancel(ctx)
	if err != nil {
		if errRelease := s.idempotency.Release(storeCtx, key); errRelease != nil {
			s.log.Warn().Err(errRelease).Msg("failed to release idempotency key")
		}
		return nil, err
	}

	data, err := json.Marshal(res)
	if err == nil {
		err = s.idempotency.Save(storeCtx, key, data)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("order_id", res.Order.ID.String()).Msg("failed to save checkout result")
	}
	return res, nil
}

func (s *CheckoutService) observedCheckout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*CheckoutResult, error) {
	res, err := s.checkout(ctx, userID, req)
	result := "success"
	if err != nil {
		result = strings.ToLower(string(domain.KindOf(err)))
		if result == "" {
			result = "error"
		}
	}
	s.metrics.ObserveCheckout(string(req.PaymentMethod), result)
	return res, err
}

func (s *CheckoutService) checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*CheckoutResult, error) {
	var order *domain.Order
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		var err error
		order, err = s.placeOrder(ctx, q, userID, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	log := s.log.With().Str("order_id", order.ID.String()).Str("order_number", order.OrderNumber).Logger()
	if order.PaymentMethod == domain.PaymentMethodCash {
		log.Info().Msg("cash order placed")
		s.carts.InvalidateCache(userID)
		s.notifications.NewOrder(ctx, order)
		return &CheckoutResult{Order: order}, nil
	}

	log.Info().Msg("card order placed, opening payment session")
	return s.openPaymentSession(ctx, order)
}

// placeOrder snapshots the locked cart into an order. Product rows are
// locked in id order and the coupon row after them.
func (s *CheckoutService) placeOrder(ctx context.Context, q repository.Querier, userID uuid.UUID, req CheckoutRequest) (*domain.Order, error) {
	cart, err := q.GetCartForUpdate(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	address, err := q.GetShippingAddress(ctx, req.ShippingAddressID, userID)
	if err != nil {
		return nil, err
	}

	if err := checkStock(ctx, q, cart); err != nil {
		return nil, err
	}

	if cart.CouponID != nil {
		coupon, err := q.GetCouponForUpdate(ctx, *cart.CouponID)
		if errors.Is(err, repository.ErrCouponNotFound) {
			return nil, domain.ErrInvalidCoupon
		}
		if err != nil {
			return nil, err
		}
		if err := coupon.Validate(s.now()); err != nil {
			return nil, err
		}
	}

	order := domain.NewOrderFromCart(cart, address, req.PaymentMethod)
	if err := q.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	order.OrderNumber = domain.GenerateOrderNumber(order.ID, order.UserID, order.CreatedAt)
	if err := q.SetOrderNumber(ctx, order.ID, order.OrderNumber); err != nil {
		return nil, fmt.Errorf("failed to set order number: %w", err)
	}

	if order.PaymentMethod == domain.PaymentMethodCash {
		if err := emptyCart(ctx, q, cart); err != nil {
			return nil, err
		}
		if err := q.SaveCartTotals(ctx, cart); err != nil {
			return nil, fmt.Errorf("failed to save cart totals: %w", err)
		}
		if err := applyOrderEffects(ctx, q, order, s.log); err != nil {
			return nil, err
		}
		if err := q.UpdateOrderState(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to update order: %w", err)
		}
	}

	if err := writeOutbox(ctx, q, order, EventOrderCreated, nil); err != nil {
		return nil, err
	}
	return order, nil
}

// checkStock locks every product in the cart and compares the quantity
// asked for across all its variants with the stock.
func checkStock(ctx context.Context, q repository.Querier, cart *domain.Cart) error {
	var ids []uuid.UUID
	for _, it := range cart.Items {
		if !slices.Contains(ids, it.ProductID) {
			ids = append(ids, it.ProductID)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})

	for _, id := range ids {
		product, err := q.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cart.QuantityOf(id) > product.Stock {
			return domain.NewInsufficientStockError(product.Name, product.Stock)
		}
	}
	return nil
}

func (s *CheckoutService) openPaymentSession(ctx context.Context, order *domain.Order) (*CheckoutResult, error) {
	req := payment.SessionRequest{
		OrderID:     order.ID,
		UserID:      order.UserID,
		OrderNumber: order.OrderNumber,
		Discount:    order.Discount,
	}
	for _, it := range order.Items {
		req.Items = append(req.Items, payment.LineItem{
			Name:       lineItemName(it),
			UnitAmount: it.Price,
			Quantity:   it.Quantity,
		})
	}
	if order.ShippingCost.IsPositive() {
		req.Items = append(req.Items, payment.LineItem{Name: "Shipping", UnitAmount: order.ShippingCost, Quantity: 1})
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err == nil && (sess == nil || sess.ID == "" || sess.URL == "") {
		err = domain.ErrPaymentSession.WithMessage("payment gateway returned an unusable session")
	}
	if err == nil {
		err = s.store.SetPaymentSession(ctx, order.ID, sess.ID)
	}
	if err != nil {
		s.log.Error().Err(err).Str("order_id", order.ID.String()).Msg("payment session failed, cancelling order")
		if _, errAbandon := s.abandonOrder(context.WithoutCancel(ctx), order.ID); errAbandon != nil {
			s.log.Error().Err(errAbandon).Str("order_id", order.ID.String()).Msg("failed to cancel order without payment session")
		}
		if domain.KindOf(err) != domain.KindPaymentSession {
			err = domain.ErrPaymentSession.Wrap(err)
		}
		return nil, err
	}

	order.PaymentSessionID = sess.ID
	return &CheckoutResult{Order: order, CheckoutURL: sess.URL}, nil
}

func lineItemName(it domain.OrderItem) string {
	var variant []string
	if it.Color != nil {
		variant = append(variant, *it.Color)
	}
	if it.Size != nil {
		variant = append(variant, *it.Size)
	}
	if len(variant) == 0 {
		return it.ProductName
	}
	return fmt.Sprintf("%s (%s)", it.ProductName, strings.Join(variant, ", "))
}

// AbandonStaleOrders cancels card orders that have waited longer than the
// stale age without a payment session. It returns how many were cancelled.
func (s *CheckoutService) AbandonStaleOrders(ctx context.Context) (int, error) {
	ids, err := s.store.ListStalePaymentOrders(ctx, s.now().Add(-s.staleAge), staleOrderBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale orders: %w", err)
	}

	abandoned := 0
	for _, id := range ids {
		ok, err := s.abandonOrder(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("order_id", id.String()).Msg("failed to abandon stale order")
			continue
		}
		if ok {
			abandoned++
		}
	}
	return abandoned, nil
}

// abandonOrder cancels a pending card order that has no payment session.
func (s *CheckoutService) abandonOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	abandoned := false
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending ||
			order.PaymentSessionID != "" {
			return nil
		}

		order.MarkPaymentFailed()
		if err := reverseOrderEffects(ctx, q, order, s.log); err != nil {
			return err
		}
		if err := q.UpdateOrderState(ctx, order); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		abandoned = true
		return writeOutbox(ctx, q, order, EventOrderPaymentFailed, nil)
	})
	return abandoned, err
}
