package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

type CartCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	Set(ctx context.Context, userID uuid.UUID, cart *domain.Cart) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// IdempotencyStore remembers the response of a request made with a client
// supplied key.
type IdempotencyStore interface {
	// Reserve claims key. It reports false when the key is already claimed.
	Reserve(ctx context.Context, key string) (bool, error)
	// Load returns the saved response, or ErrCacheMiss while the first
	// request is still running.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, response []byte) error
	Release(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")

// NoopCache never stores anything. It is used when Redis is not configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, uuid.UUID) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (NoopCache) Set(context.Context, uuid.UUID, *domain.Cart) error   { return nil }
func (NoopCache) Delete(context.Context, uuid.UUID) error              { return nil }
