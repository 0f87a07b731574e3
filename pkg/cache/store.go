package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by stores that cannot currently reach their backend.
var ErrUnavailable = errors.New("cache store unavailable")

// Store is a byte-oriented key/value backend with TTL support.
// A miss is reported as (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}
