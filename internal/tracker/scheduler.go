package tracker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dealwatch/internal/metrics"
	"github.com/JakeFAU/dealwatch/internal/watch"
)

// DefaultInterval is the delay between sweeps.
const DefaultInterval = 60 * time.Second

// Sweeper runs one pass over every tracked source.
type Sweeper interface {
	SweepAll(ctx context.Context) ([]watch.SweepResult, error)
}

// SchedulerConfig controls the sweep cadence.
type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// Scheduler triggers sweeps on a fixed interval.
type Scheduler struct {
	sweeper Sweeper
	cfg     SchedulerConfig
	logger  *zap.Logger
}

// NewScheduler builds a Scheduler. A non-positive interval uses DefaultInterval.
func NewScheduler(sweeper Sweeper, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Scheduler{sweeper: sweeper, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled. The first tick fires one interval after start unless
// RunOnStart is set. Ticks that arrive while a sweep is still running are skipped.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval))
	defer s.logger.Info("scheduler stopped")

	done := make(chan struct{}, 1)
	done <- struct{}{}
	launch := func() {
		select {
		case <-done:
		default:
			metrics.ObserveTickSkipped()
			s.logger.Warn("previous sweep still running; skipping tick")
			return
		}
		go func() {
			defer func() { done <- struct{}{} }()
			s.runOnce(ctx)
		}()
	}

	if s.cfg.RunOnStart {
		launch()
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Wait for an in-flight sweep so shutdown does not race its sends.
			<-done
			return
		case <-ticker.C:
			launch()
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	results, err := s.sweeper.SweepAll(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		metrics.ObserveTickSkipped()
		s.logger.Warn("manual sweep in progress; skipping tick")
		return
	case err != nil && ctx.Err() == nil:
		s.logger.Error("sweep failed", zap.Error(err))
		return
	}
	notified, failed := 0, 0
	for _, r := range results {
		notified += r.Notified
		failed += r.Failed
	}
	s.logger.Debug("scheduled sweep complete",
		zap.Int("sources", len(results)),
		zap.Int("notified", notified),
		zap.Int("failed", failed),
	)
}
