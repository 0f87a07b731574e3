// Package ratelimit implements a fixed-window request counter per client.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
)

const keyPrefix = "ratelimit:"

// Result describes a single limiter decision
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Err returns a rate limited error for a rejected result, nil otherwise.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return apperrors.RateLimited(r.Limit, r.Remaining, r.ResetAt)
}

type Limiter struct {
	store   CounterStore
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New returns a limiter over store. A nil store means the limiter always allows.
func New(store CounterStore, logger zerolog.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{
		store:   store,
		logger:  logger.With().Str("component", "ratelimit").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// Check counts one request for id and decides whether it is within limit for
// the current window. Store failures fail open.
func (l *Limiter) Check(ctx context.Context, id string, limit int, window time.Duration) Result {
	if l == nil || l.store == nil || limit <= 0 {
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}

	count, resetAt, err := l.store.Incr(ctx, keyPrefix+id, window)
	if err != nil {
		l.observe("error")
		l.logger.Warn().Err(err).Str("client", id).Msg("rate limit store unavailable, allowing request")
		return Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: l.now().Add(window)}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	if res.Allowed {
		l.observe("allowed")
	} else {
		l.observe("rejected")
	}
	return res
}

// Key builds a limiter identifier scoped to a route group
func Key(scope, client string) string {
	return fmt.Sprintf("%s:%s", scope, client)
}

func (l *Limiter) observe(outcome string) {
	if l.metrics != nil {
		l.metrics.RateLimitDecisions.WithLabelValues(outcome).Inc()
	}
}
