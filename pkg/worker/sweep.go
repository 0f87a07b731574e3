package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/ckd-api/internal/repository"
	"github.com/jwalitptl/ckd-api/internal/service/rules"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
)

type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

func (c SweepConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("sweep interval must be greater than 0")
	}
	if c.BatchSize <= 0 {
		return errors.New("sweep batch size must be greater than 0")
	}
	return nil
}

// SweepProcessor periodically re-evaluates every patient whose medical info
// changed since the previous successful sweep.
type SweepProcessor struct {
	repo      repository.PatientRepository
	evaluator *rules.Evaluator
	sessions  *rules.SessionRegistry
	config    SweepConfig
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu    sync.Mutex
	since time.Time
}

func NewSweepProcessor(
	repo repository.PatientRepository,
	evaluator *rules.Evaluator,
	sessions *rules.SessionRegistry,
	config SweepConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) (*SweepProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	p := &SweepProcessor{
		repo:      repo,
		evaluator: evaluator,
		sessions:  sessions,
		config:    config,
		logger:    logger.With().Str("component", "sweep").Logger(),
		metrics:   m,
		now:       time.Now,
	}
	p.since = p.now().Add(-config.Interval)
	return p, nil
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (p *SweepProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.config.Interval).Msg("starting sweep processor")
	p.run(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("shutting down sweep processor")
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *SweepProcessor) run(ctx context.Context) {
	n, err := p.Sweep(ctx)
	if err != nil {
		p.logger.Error().Err(err).Int("patients", n).Msg("sweep failed")
		return
	}
	p.logger.Info().Int("patients", n).Msg("sweep completed")
}

// Sweep evaluates every patient updated since the last successful sweep and
// returns how many were evaluated. The watermark only advances on success,
// so a failed page is retried on the next run.
func (p *SweepProcessor) Sweep(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.SweepRuns.Inc()
		timer := prometheus.NewTimer(p.metrics.SweepDuration)
		defer timer.ObserveDuration()
	}

	started := p.now()
	evaluated := 0
	for offset := 0; ; offset += p.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return evaluated, err
		}

		infos, err := p.repo.ListUpdatedSince(ctx, p.since, p.config.BatchSize, offset)
		if err != nil {
			return evaluated, fmt.Errorf("failed to list updated patients: %w", err)
		}

		for _, info := range infos {
			outcomes := p.evaluator.Evaluate(ctx, info, p.sessions.For(info.PatientID))
			evaluated++
			if p.metrics != nil {
				p.metrics.SweepPatients.Inc()
			}
			if len(outcomes) > 0 {
				p.logger.Debug().
					Str("patient_id", info.PatientID.String()).
					Int("dispatched", len(outcomes)).
					Msg("patient evaluated")
			}
		}

		if len(infos) < p.config.BatchSize {
			break
		}
	}

	p.since = started
	return evaluated, nil
}
