package ratelimit

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/ckd-api/pkg/circuitbreaker"
)

// CounterStore increments a per-key counter inside a fixed window. The first
// increment of a window sets the key to expire after window; later increments
// leave the expiry alone.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// RedisCounter implements CounterStore with INCR + EXPIRE.
type RedisCounter struct {
	client redis.UniversalClient
	cb     *circuitbreaker.CircuitBreaker
}

func NewRedisCounter(client redis.UniversalClient, cb *circuitbreaker.CircuitBreaker) *RedisCounter {
	if cb == nil {
		cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "redis-ratelimit"})
	}
	return &RedisCounter{client: client, cb: cb}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	var (
		count int64
		ttl   time.Duration
	)
	err := r.cb.Execute(func() error {
		var err error
		count, err = r.client.Incr(ctx, key).Result()
		if err != nil {
			return err
		}
		if count == 1 {
			if err := r.client.Expire(ctx, key, window).Err(); err != nil {
				return err
			}
			ttl = window
			return nil
		}
		ttl, err = r.client.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}
		// A key without expiry means the EXPIRE after the first INCR was lost.
		if ttl < 0 {
			if err := r.client.Expire(ctx, key, window).Err(); err != nil {
				return err
			}
			ttl = window
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, time.Now().Add(ttl), nil
}

// MemoryCounter implements CounterStore in process with go-cache. Counts are
// per process, so it only suits single-instance deployments and tests.
type MemoryCounter struct {
	items *gocache.Cache
}

func NewMemoryCounter(cleanupInterval time.Duration) *MemoryCounter {
	return &MemoryCounter{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	// Add fails if the key exists and has not expired, which is exactly the
	// "first increment of the window" condition.
	_ = m.items.Add(key, int64(0), window)

	count, err := m.items.IncrementInt64(key, 1)
	if err != nil {
		// Expired between Add and Increment: start a new window.
		m.items.Set(key, int64(1), window)
		return 1, time.Now().Add(window), nil
	}

	_, exp, ok := m.items.GetWithExpiration(key)
	if !ok || exp.IsZero() {
		exp = time.Now().Add(window)
	}
	return count, exp, nil
}
