package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and a client pointing at it
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func testCart(userID uuid.UUID) *domain.Cart {
	return &domain.Cart{
		ID:         uuid.New(),
		UserID:     userID,
		SubTotal:   decimal.RequireFromString("19.98"),
		Discount:   decimal.Zero,
		TotalPrice: decimal.RequireFromString("19.98"),
		Items: []domain.CartItem{
			{ID: uuid.New(), ProductID: uuid.New(), ProductName: "Mug", UnitPrice: decimal.RequireFromString("9.99"),
				Quantity: 2, LineTotal: decimal.RequireFromString("19.98")},
		},
	}
}

func TestGet_Success(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client, 0)

	ctx := context.Background()
	userID := uuid.New()
	cart := testCart(userID)

	cartJSON, _ := json.Marshal(cart)
	mr.Set(cartKey(userID), string(cartJSON))

	result, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, result.ID)
	require.Len(t, result.Items, 1)
	assert.True(t, cart.TotalPrice.Equal(result.TotalPrice))
}

func TestGet_CacheMiss(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client, 0)

	result, err := cache.Get(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client, 0)

	userID := uuid.New()
	mr.Set(cartKey(userID), "{not json")

	_, err := cache.Get(context.Background(), userID)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.False(t, mr.Exists(cartKey(userID)), "undecodable entry is dropped")
}

func TestGet_EntryForAnotherUserIsMiss(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client, 0)

	userID := uuid.New()
	cartJSON, _ := json.Marshal(testCart(uuid.New()))
	mr.Set(cartKey(userID), string(cartJSON))

	_, err := cache.Get(context.Background(), userID)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSet_UsesTTLWithJitter(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client, 15*time.Minute)

	userID := uuid.New()
	require.NoError(t, cache.Set(context.Background(), userID, testCart(userID)))

	ttl := mr.TTL(cartKey(userID))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 18*time.Minute)
}

func TestDelete(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client, 0)

	userID := uuid.New()
	require.NoError(t, cache.Set(context.Background(), userID, testCart(userID)))
	require.NoError(t, cache.Delete(context.Background(), userID))

	assert.False(t, mr.Exists(cartKey(userID)))
}

func TestRedisErrorsAreNotMisses(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client, 0)

	mr.SetError("server down")
	_, err := cache.Get(context.Background(), uuid.New())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestIdempotencyStore_ReserveLoadSave(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewRedisIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "user:key-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "user:key-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Load(ctx, "user:key-1")
	assert.ErrorIs(t, err, ErrCacheMiss, "pending reservation is not a result")

	require.NoError(t, store.Save(ctx, "user:key-1", []byte(`{"order":{}}`)))
	data, err := store.Load(ctx, "user:key-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"order":{}}`, string(data))
	assert.Equal(t, time.Hour, mr.TTL(idempotencyKey("user:key-1")))
}

func TestIdempotencyStore_Release(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewRedisIdempotencyStore(client, 0)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k"))

	ok, err := store.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
