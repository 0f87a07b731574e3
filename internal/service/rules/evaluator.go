package rules

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
)

var errPanicked = errors.New("notification delivery panicked")

// Notifier delivers a single notification.
type Notifier interface {
	Create(ctx context.Context, input model.CreateNotificationInput) (*model.Notification, error)
}

// Outcome is the settled result of one dispatched rule.
type Outcome struct {
	Rule         Rule                `json:"rule"`
	Key          string              `json:"key"`
	Notification *model.Notification `json:"notification,omitempty"`
	Err          error               `json:"-"`
}

func (o Outcome) Delivered() bool {
	return o.Err == nil && o.Notification != nil
}

type Evaluator struct {
	notifier Notifier
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewEvaluator(notifier Notifier, logger zerolog.Logger, m *metrics.Metrics) *Evaluator {
	return &Evaluator{
		notifier: notifier,
		logger:   logger.With().Str("component", "rules").Logger(),
		metrics:  m,
	}
}

// Evaluate runs every rule against info and delivers a notification for each
// one that qualifies and whose dedup key has not fired in session. Deliveries
// run concurrently and Evaluate waits for all of them. A failed delivery is
// logged and reported in its Outcome; it never affects the others, and its
// key stays claimed.
func (e *Evaluator) Evaluate(ctx context.Context, info *model.MedicalInfo, session *Session) []Outcome {
	if info == nil {
		return nil
	}
	if session == nil {
		session = NewSession()
	}
	if e.metrics != nil {
		e.metrics.RuleEvaluations.Inc()
	}

	var dispatched []candidate
	for _, c := range match(info) {
		if !session.Claim(c.key) {
			e.logger.Debug().
				Str("patient_id", info.PatientID.String()).
				Str("key", c.key).
				Msg("rule already fired in session")
			continue
		}
		dispatched = append(dispatched, c)
	}
	if len(dispatched) == 0 {
		return nil
	}

	outcomes := make([]Outcome, len(dispatched))
	var wg sync.WaitGroup
	for i, c := range dispatched {
		wg.Add(1)
		go func(i int, c candidate) {
			defer wg.Done()
			outcomes[i] = e.deliver(ctx, info, c)
		}(i, c)
	}
	wg.Wait()

	return outcomes
}

func (e *Evaluator) deliver(ctx context.Context, info *model.MedicalInfo, c candidate) (out Outcome) {
	out = Outcome{Rule: c.rule, Key: c.key}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Interface("panic", r).
				Str("rule", string(c.rule)).
				Msg("notification delivery panicked")
			out.Notification = nil
			out.Err = errPanicked
		}
		e.observe(out)
	}()

	if e.metrics != nil {
		e.metrics.RulesFired.WithLabelValues(string(c.rule)).Inc()
	}

	n, err := e.notifier.Create(ctx, c.input)
	if err != nil {
		e.logger.Error().
			Err(err).
			Str("patient_id", info.PatientID.String()).
			Str("rule", string(c.rule)).
			Str("key", c.key).
			Msg("failed to deliver rule notification")
		out.Err = err
		return out
	}

	e.logger.Info().
		Str("patient_id", info.PatientID.String()).
		Str("rule", string(c.rule)).
		Str("notification_id", n.ID.String()).
		Msg("rule notification delivered")
	out.Notification = n
	return out
}

func (e *Evaluator) observe(out Outcome) {
	if e.metrics == nil {
		return
	}
	status := "delivered"
	if out.Err != nil {
		status = "failed"
	}
	e.metrics.RuleDeliveries.WithLabelValues(string(out.Rule), status).Inc()
}
