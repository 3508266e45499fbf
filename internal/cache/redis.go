package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// cartKeyPrefix is bumped whenever the cached cart layout changes, so old
// entries simply stop being read.
const cartKeyPrefix = "storefront:cart:v1:"

// RedisCache keeps read-through copies of carts. Any cart mutation deletes
// the entry; the TTL only bounds how long an abandoned cart stays cached.
type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func NewRedisCache(client redis.UniversalClient, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: baseTTL}
}

// Get returns the cached cart. An entry that no longer decodes is dropped
// and reported as a miss so the caller reloads from the store.
func (r *RedisCache) Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	key := cartKey(userID)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil || cart.UserID != userID {
		if errDel := r.client.Del(ctx, key).Err(); errDel != nil {
			return nil, fmt.Errorf("drop undecodable cart entry: %w", errDel)
		}
		return nil, ErrCacheMiss
	}
	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID uuid.UUID, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := r.client.Set(ctx, cartKey(userID), data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

// ttl adds up to a fifth of the base TTL so carts cached together do not
// all expire together.
func (r *RedisCache) ttl() time.Duration {
	return r.baseTTL + rand.N(r.baseTTL/5+1)
}

func cartKey(userID uuid.UUID) string {
	return cartKeyPrefix + userID.String()
}
