// Package cache is a cache-aside facade over an optional key/value store.
//
// Entries are advisory. Every backend failure degrades to a miss or a no-op
// and is never returned to the caller, so a missing or broken store changes
// only cost, never results.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/ckd-api/pkg/metrics"
)

// DefaultTTL applies when a caller passes a zero TTL
const DefaultTTL = 5 * time.Minute

type Cache struct {
	store   Store
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New returns a Cache over store. A nil store yields a cache that always misses.
func New(store Store, logger zerolog.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		store:   store,
		logger:  logger.With().Str("component", "cache").Logger(),
		metrics: m,
	}
}

// Available reports whether a backing store is configured
func (c *Cache) Available() bool {
	return c != nil && c.store != nil
}

// Get decodes the cached value for key into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dst interface{}) bool {
	if !c.Available() {
		return false
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.observe("get", "error")
		c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return false
	}
	if !ok {
		c.observe("get", "miss")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.observe("get", "error")
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		return false
	}

	c.observe("get", "hit")
	return true
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !c.Available() {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.observe("set", "error")
		c.logger.Warn().Err(err).Str("key", key).Msg("cache value not encodable")
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.observe("set", "error")
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
		return
	}
	c.observe("set", "ok")
}

func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.Available() || len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.observe("delete", "error")
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("cache delete failed")
		return
	}
	c.observe("delete", "ok")
}

func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) {
	if !c.Available() {
		return
	}
	if err := c.store.DeleteByPattern(ctx, pattern); err != nil {
		c.observe("delete_pattern", "error")
		c.logger.Warn().Err(err).Str("pattern", pattern).Msg("cache pattern delete failed")
		return
	}
	c.observe("delete_pattern", "ok")
}

// WithCache returns the cached value for key, or calls produce, stores its
// result and returns it. Concurrent misses for one key each call produce.
// Errors from produce are returned and nothing is stored.
func WithCache[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, produce func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}

	v, err := produce(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.Set(ctx, key, v, ttl)
	return v, nil
}

func (c *Cache) observe(op, result string) {
	if c.metrics != nil {
		c.metrics.CacheOperations.WithLabelValues(op, result).Inc()
	}
}
