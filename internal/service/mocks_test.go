package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockGateway implements payment.Gateway for testing
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	args := m.Called(ctx, req)
	sess, _ := args.Get(0).(*payment.Session)
	return sess, args.Error(1)
}

func (m *mockGateway) VerifyWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	args := m.Called(payload, signature)
	event, _ := args.Get(0).(*payment.WebhookEvent)
	return event, args.Error(1)
}

// recordingNotifier implements notify.Notifier for testing
type recordingNotifier struct {
	mu       sync.Mutex
	newOrder []*domain.Order
	updated  []domain.Changes
	err      error
}

func (n *recordingNotifier) NotifyNewOrder(_ context.Context, order *domain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newOrder = append(n.newOrder, order)
	return n.err
}

func (n *recordingNotifier) NotifyOrderUpdated(_ context.Context, _ *domain.Order, changes domain.Changes) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, changes)
	return n.err
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *repository.MemoryStore
	redis      *miniredis.Miniredis
	cartCache  *cache.RedisCache
	gateway    *mockGateway
	notifier   *recordingNotifier
	metrics    *metrics.Metrics
	carts      *CartService
	coupons    *CouponService
	checkout   *CheckoutService
	settlement *SettlementService
	orders     *OrderService
	userID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		store:     repository.NewMemoryStore(),
		redis:     mr,
		cartCache: cache.NewRedisCache(client, 15*time.Minute),
		gateway:   &mockGateway{},
		notifier:  &recordingNotifier{},
		metrics:   metrics.New(prometheus.NewRegistry()),
		userID:    uuid.New(),
	}
	log := zerolog.Nop()
	notifications := NewNotifications(f.notifier, time.Second, f.metrics, log)

	f.carts = NewCartService(f.store, f.cartCache, log)
	f.coupons = NewCouponService(f.store, log)
	f.checkout = NewCheckoutService(f.store, f.carts, f.gateway, notifications, log,
		WithIdempotency(cache.NewRedisIdempotencyStore(client, time.Hour)),
		WithCheckoutMetrics(f.metrics),
		WithStaleOrderAge(15*time.Minute))
	f.settlement = NewSettlementService(f.store, f.carts, f.gateway, notifications, f.metrics, log)
	f.orders = NewOrderService(f.store, notifications, log)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string {
	return &s
}

func (f *fixture) addProduct(name, price string, stock int) uuid.UUID {
	return f.store.SaveProduct(domain.Product{
		Name:   name,
		Price:  dec(price),
		Stock:  stock,
		Colors: []string{},
		Sizes:  []string{},
	})
}

func (f *fixture) addVariantProduct(name, price string, stock int, colors, sizes []string) uuid.UUID {
	return f.store.SaveProduct(domain.Product{
		Name:   name,
		Price:  dec(price),
		Stock:  stock,
		Colors: colors,
		Sizes:  sizes,
	})
}

func (f *fixture) product(id uuid.UUID) *domain.Product {
	p, err := f.store.GetProduct(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) addAddress(owner uuid.UUID, shipping string) uuid.UUID {
	return f.store.SaveAddress(domain.ShippingAddress{
		OwnerID:    owner,
		FullName:   "Jane Doe",
		Phone:      "+10000000000",
		Street:     "1 Main St",
		PostalCode: "10001",
		City: domain.City{
			ID:            uuid.New(),
			Name:          "Springfield",
			Country:       "US",
			ShippingPrice: dec(shipping),
		},
	})
}

func (f *fixture) addCoupon(code string, kind domain.DiscountType, value, minOrder string, maxUsage int) *domain.Coupon {
	c := &domain.Coupon{
		Code:          code,
		DiscountType:  kind,
		DiscountValue: dec(value),
		MinOrderValue: dec(minOrder),
		MaxUsage:      maxUsage,
		ExpiredAt:     time.Now().Add(24 * time.Hour),
		IsActive:      true,
	}
	require.NoError(f.t, f.store.CreateCoupon(f.ctx, c))
	return c
}

func (f *fixture) coupon(id uuid.UUID) *domain.Coupon {
	c, err := f.store.GetCoupon(f.ctx, id)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) addToCart(productID uuid.UUID, qty int) *domain.Cart {
	cart, err := f.carts.AddItem(f.ctx, f.userID, AddItemRequest{ProductID: productID, Quantity: qty})
	require.NoError(f.t, err)
	return cart
}

func (f *fixture) storedCart() *domain.Cart {
	cart, err := f.store.GetCartByUser(f.ctx, f.userID)
	require.NoError(f.t, err)
	return cart
}

func (f *fixture) storedOrder(id uuid.UUID) *domain.Order {
	o, err := f.store.GetOrder(f.ctx, id)
	require.NoError(f.t, err)
	return o
}

// assertTotals checks the cart totals invariant.
func assertTotals(t *testing.T, cart *domain.Cart) {
	t.Helper()
	sum := decimal.Zero
	for _, it := range cart.Items {
		require.True(t, it.LineTotal.Equal(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))),
			"line total of %s", it.ProductName)
		sum = sum.Add(it.LineTotal)
	}
	require.True(t, cart.SubTotal.Equal(sum), "subtotal %s != %s", cart.SubTotal, sum)
	require.True(t, cart.TotalPrice.Equal(cart.SubTotal.Sub(cart.Discount)), "total %s", cart.TotalPrice)
}
