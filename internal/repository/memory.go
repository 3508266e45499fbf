package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore implements Store and OutboxStore in process memory. A
// transaction holds the store lock for its whole duration and restores a
// snapshot when fn fails.
type MemoryStore struct {
	*memQuerier
	mu sync.Mutex
}

type memState struct {
	carts      map[uuid.UUID]domain.Cart // by user id
	cartItems  map[uuid.UUID][]domain.CartItem
	products   map[uuid.UUID]domain.Product
	addresses  map[uuid.UUID]domain.ShippingAddress
	coupons    map[uuid.UUID]domain.Coupon
	orders     map[uuid.UUID]domain.Order
	orderIDs   []uuid.UUID // insertion order
	events     map[string]struct{}
	outbox     []OutboxEvent
	processed  map[int64]time.Time
	nextOutbox int64
	now        func() time.Time
}

type memQuerier struct {
	state *memState
	mu    *sync.Mutex // nil inside a transaction
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.memQuerier = &memQuerier{
		state: &memState{
			carts:     make(map[uuid.UUID]domain.Cart),
			cartItems: make(map[uuid.UUID][]domain.CartItem),
			products:  make(map[uuid.UUID]domain.Product),
			addresses: make(map[uuid.UUID]domain.ShippingAddress),
			coupons:   make(map[uuid.UUID]domain.Coupon),
			orders:    make(map[uuid.UUID]domain.Order),
			events:    make(map[string]struct{}),
			processed: make(map[int64]time.Time),
			now:       time.Now,
		},
		mu: &s.mu,
	}
	return s
}

func (s *MemoryStore) WithTx(_ context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memQuerier{state: s.state}); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// SetClock replaces the time source used for timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	defer s.lock()()
	s.state.now = now
}

// SaveProduct inserts or replaces a catalog product. A nil id is assigned.
func (s *MemoryStore) SaveProduct(p domain.Product) uuid.UUID {
	defer s.lock()()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.state.products[p.ID] = p
	return p.ID
}

// SaveAddress inserts or replaces an address book entry. A nil id is assigned.
func (s *MemoryStore) SaveAddress(a domain.ShippingAddress) uuid.UUID {
	defer s.lock()()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.state.addresses[a.ID] = a
	return a.ID
}

func (s *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	defer s.lock()()
	var events []*OutboxEvent
	for _, e := range s.state.outbox {
		if _, done := s.state.processed[e.ID]; done {
			continue
		}
		ev := e
		events = append(events, &ev)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *MemoryStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	defer s.lock()()
	s.state.processed[id] = s.state.now()
	return nil
}

func (st *memState) clone() *memState {
	cp := *st
	cp.carts = maps.Clone(st.carts)
	cp.cartItems = make(map[uuid.UUID][]domain.CartItem, len(st.cartItems))
	for id, items := range st.cartItems {
		cp.cartItems[id] = slices.Clone(items)
	}
	cp.products = maps.Clone(st.products)
	cp.addresses = maps.Clone(st.addresses)
	cp.coupons = maps.Clone(st.coupons)
	cp.orders = maps.Clone(st.orders)
	cp.orderIDs = slices.Clone(st.orderIDs)
	cp.events = maps.Clone(st.events)
	cp.outbox = slices.Clone(st.outbox)
	cp.processed = maps.Clone(st.processed)
	return &cp
}

func (q *memQuerier) lock() func() {
	if q.mu == nil {
		return func() {}
	}
	q.mu.Lock()
	return q.mu.Unlock
}

func (q *memQuerier) GetCartByUser(_ context.Context, userID uuid.UUID) (*domain.Cart, error) {
	defer q.lock()()
	return q.cart(userID)
}

func (q *memQuerier) GetCartForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return q.GetCartByUser(ctx, userID)
}

func (q *memQuerier) cart(userID uuid.UUID) (*domain.Cart, error) {
	c, ok := q.state.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	c.Items = slices.Clone(q.state.cartItems[c.ID])
	if c.Items == nil {
		c.Items = []domain.CartItem{}
	}
	return &c, nil
}

func (q *memQuerier) CreateCart(_ context.Context, userID uuid.UUID) error {
	defer q.lock()()
	if _, ok := q.state.carts[userID]; ok {
		return nil
	}
	now := q.state.now()
	q.state.carts[userID] = domain.Cart{
		ID:         uuid.New(),
		UserID:     userID,
		SubTotal:   decimal.Zero,
		Discount:   decimal.Zero,
		TotalPrice: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

func (q *memQuerier) ListCartItems(_ context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	defer q.lock()()
	items := slices.Clone(q.state.cartItems[cartID])
	if items == nil {
		items = []domain.CartItem{}
	}
	return items, nil
}

func (q *memQuerier) InsertCartItem(_ context.Context, item *domain.CartItem) error {
	defer q.lock()()
	for _, existing := range q.state.cartItems[item.CartID] {
		if existing.ProductID == item.ProductID && optionKey(existing.Color) == optionKey(item.Color) &&
			optionKey(existing.Size) == optionKey(item.Size) {
			return fmt.Errorf("insert cart item: duplicate variant of product %s", item.ProductID)
		}
	}
	item.ID = uuid.New()
	item.AddedAt = q.state.now()
	q.state.cartItems[item.CartID] = append(q.state.cartItems[item.CartID], *item)
	return nil
}

func (q *memQuerier) UpdateCartItemQuantity(_ context.Context, itemID uuid.UUID, quantity int, lineTotal decimal.Decimal) error {
	defer q.lock()()
	for cartID, items := range q.state.cartItems {
		for i := range items {
			if items[i].ID == itemID {
				items = slices.Clone(items)
				items[i].Quantity = quantity
				items[i].LineTotal = lineTotal
				q.state.cartItems[cartID] = items
				return nil
			}
		}
	}
	return ErrItemNotFound
}

func (q *memQuerier) DeleteCartItem(_ context.Context, itemID uuid.UUID) error {
	defer q.lock()()
	for cartID, items := range q.state.cartItems {
		for i := range items {
			if items[i].ID == itemID {
				q.state.cartItems[cartID] = slices.Delete(slices.Clone(items), i, i+1)
				return nil
			}
		}
	}
	return ErrItemNotFound
}

func (q *memQuerier) DeleteCartItems(_ context.Context, cartID uuid.UUID) error {
	defer q.lock()()
	delete(q.state.cartItems, cartID)
	return nil
}

func (q *memQuerier) SaveCartTotals(_ context.Context, cart *domain.Cart) error {
	defer q.lock()()
	stored, ok := q.state.carts[cart.UserID]
	if !ok || stored.ID != cart.ID {
		return fmt.Errorf("update cart totals: cart %s not found", cart.ID)
	}
	stored.CouponID = cart.CouponID
	stored.SubTotal = cart.SubTotal
	stored.Discount = cart.Discount
	stored.TotalPrice = cart.TotalPrice
	stored.UpdatedAt = q.state.now()
	cart.UpdatedAt = stored.UpdatedAt
	q.state.carts[cart.UserID] = stored
	return nil
}

func (q *memQuerier) GetProduct(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	defer q.lock()()
	p, ok := q.state.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (q *memQuerier) GetProductForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return q.GetProduct(ctx, id)
}

func (q *memQuerier) AdjustStock(_ context.Context, productID uuid.UUID, stockDelta, soldDelta int) (int, error) {
	defer q.lock()()
	p, ok := q.state.products[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	p.Stock += stockDelta
	p.Sold = max(p.Sold+soldDelta, 0)
	p.UpdatedAt = q.state.now()
	q.state.products[productID] = p
	return p.Stock, nil
}

func (q *memQuerier) GetShippingAddress(_ context.Context, id, ownerID uuid.UUID) (*domain.ShippingAddress, error) {
	defer q.lock()()
	a, ok := q.state.addresses[id]
	if !ok || a.OwnerID != ownerID {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

func (q *memQuerier) GetCoupon(_ context.Context, id uuid.UUID) (*domain.Coupon, error) {
	defer q.lock()()
	c, ok := q.state.coupons[id]
	if !ok {
		return nil, ErrCouponNotFound
	}
	return &c, nil
}

func (q *memQuerier) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	defer q.lock()()
	code = domain.NormalizeCouponCode(code)
	for _, c := range q.state.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, ErrCouponNotFound
}

func (q *memQuerier) GetCouponForUpdate(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return q.GetCoupon(ctx, id)
}

func (q *memQuerier) CreateCoupon(_ context.Context, c *domain.Coupon) error {
	defer q.lock()()
	c.Code = domain.NormalizeCouponCode(c.Code)
	for _, existing := range q.state.coupons {
		if existing.Code == c.Code {
			return ErrDuplicateCouponCode
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = q.state.now()
	q.state.coupons[c.ID] = *c
	return nil
}

func (q *memQuerier) IncrementCouponUsage(_ context.Context, id uuid.UUID) (bool, error) {
	defer q.lock()()
	c, ok := q.state.coupons[id]
	if !ok || c.UsedCount >= c.MaxUsage {
		return false, nil
	}
	c.UsedCount++
	q.state.coupons[id] = c
	return true, nil
}

func (q *memQuerier) DecrementCouponUsage(_ context.Context, id uuid.UUID) error {
	defer q.lock()()
	c, ok := q.state.coupons[id]
	if !ok {
		return nil
	}
	c.UsedCount = max(c.UsedCount-1, 0)
	q.state.coupons[id] = c
	return nil
}

func (q *memQuerier) CreateOrder(_ context.Context, order *domain.Order) error {
	defer q.lock()()
	order.ID = uuid.New()
	order.CreatedAt = q.state.now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = slices.Clone(order.Items)
	q.state.orders[order.ID] = stored
	q.state.orderIDs = append(q.state.orderIDs, order.ID)
	return nil
}

func (q *memQuerier) SetOrderNumber(_ context.Context, orderID uuid.UUID, number string) error {
	defer q.lock()()
	o, ok := q.state.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.OrderNumber = number
	q.state.orders[orderID] = o
	return nil
}

func (q *memQuerier) SetPaymentSession(_ context.Context, orderID uuid.UUID, sessionID string) error {
	defer q.lock()()
	o, ok := q.state.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentSessionID = sessionID
	o.UpdatedAt = q.state.now()
	q.state.orders[orderID] = o
	return nil
}

func (q *memQuerier) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	defer q.lock()()
	o, ok := q.state.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (q *memQuerier) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return q.GetOrder(ctx, id)
}

func (q *memQuerier) UpdateOrderState(_ context.Context, o *domain.Order) error {
	defer q.lock()()
	stored, ok := q.state.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	stored.Status = o.Status
	stored.PaymentStatus = o.PaymentStatus
	stored.IsPaid = o.IsPaid
	stored.IsDelivered = o.IsDelivered
	stored.DeliveredAt = o.DeliveredAt
	stored.InventoryApplied = o.InventoryApplied
	stored.CouponCounted = o.CouponCounted
	stored.UpdatedAt = q.state.now()
	o.UpdatedAt = stored.UpdatedAt
	q.state.orders[o.ID] = stored
	return nil
}

func (q *memQuerier) ListOrders(_ context.Context, filter OrderFilter) ([]*domain.Order, error) {
	defer q.lock()()
	filter = filter.Normalize()

	var matched []*domain.Order
	for i := len(q.state.orderIDs) - 1; i >= 0; i-- {
		o := q.state.orders[q.state.orderIDs[i]]
		if !filter.Matches(&o) {
			continue
		}
		o.Items = nil
		matched = append(matched, &o)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	orders := []*domain.Order{}
	start := min(filter.Offset(), len(matched))
	end := min(start+filter.Limit, len(matched))
	return append(orders, matched[start:end]...), nil
}

func (q *memQuerier) ListStalePaymentOrders(_ context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	defer q.lock()()
	var ids []uuid.UUID
	for _, id := range q.state.orderIDs {
		o := q.state.orders[id]
		if o.PaymentMethod == domain.PaymentMethodCreditCard && o.Status == domain.OrderStatusPending &&
			o.PaymentStatus == domain.PaymentStatusPending && o.PaymentSessionID == "" && o.CreatedAt.Before(createdBefore) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (q *memQuerier) RecordPaymentEvent(_ context.Context, eventID, _ string, _ uuid.UUID) (bool, error) {
	defer q.lock()()
	if _, seen := q.state.events[eventID]; seen {
		return false, nil
	}
	q.state.events[eventID] = struct{}{}
	return true, nil
}

func (q *memQuerier) InsertOutboxEvent(_ context.Context, aggregateID uuid.UUID, eventType string, payload []byte) error {
	defer q.lock()()
	q.state.nextOutbox++
	q.state.outbox = append(q.state.outbox, OutboxEvent{
		ID:          q.state.nextOutbox,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     slices.Clone(payload),
		CreatedAt:   q.state.now(),
	})
	return nil
}

func optionKey(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
