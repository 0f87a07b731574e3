package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/ckd-api/pkg/circuitbreaker"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
)

const scanBatch = 100

// RedisStore is a Store backed by Redis. Calls go through a circuit breaker so a
// dead Redis costs one fast failure per call instead of a dial timeout.
type RedisStore struct {
	client  redis.UniversalClient
	cb      *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func NewRedisStore(client redis.UniversalClient, cb *circuitbreaker.CircuitBreaker, m *metrics.Metrics) *RedisStore {
	if cb == nil {
		cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "redis-cache"})
	}
	return &RedisStore{client: client, cb: cb, metrics: m}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		val   []byte
		found bool
	)
	err := s.do("get", func() error {
		b, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		val, found = b, true
		return nil
	})
	return val, found, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.do("set", func() error {
		return s.client.Set(ctx, key, value, ttl).Err()
	})
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.do("del", func() error {
		return s.client.Del(ctx, keys...).Err()
	})
}

// DeleteByPattern walks the keyspace with SCAN rather than KEYS so a large
// keyspace does not block the server.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) error {
	return s.do("del_pattern", func() error {
		var cursor uint64
		for {
			keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := s.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
}

func (s *RedisStore) do(op string, fn func() error) error {
	start := time.Now()
	err := s.cb.Execute(fn)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RedisOperations.WithLabelValues(op, status).Inc()
		s.metrics.RedisLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrUnavailable
	}
	return err
}
