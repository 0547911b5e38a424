package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

type countingSweeper struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	block   chan struct{}
	err     error
}

func (s *countingSweeper) SweepAll(ctx context.Context) ([]watch.SweepResult, error) {
	if s.running.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.running.Add(-1)
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	return []watch.SweepResult{{Notified: 1}}, s.err
}

func runScheduler(t *testing.T, sched *Scheduler) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	return func() {
		stop()
		wg.Wait()
	}
}

func TestSchedulerTicks(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	stop := runScheduler(t, NewScheduler(sweeper, SchedulerConfig{Interval: 10 * time.Millisecond}, zap.NewNop()))
	defer stop()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerWaitsOneIntervalByDefault(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	stop := runScheduler(t, NewScheduler(sweeper, SchedulerConfig{Interval: time.Hour}, nil))
	time.Sleep(50 * time.Millisecond)
	stop()

	require.Zero(t, sweeper.calls.Load())
}

func TestSchedulerRunOnStart(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	stop := runScheduler(t, NewScheduler(sweeper, SchedulerConfig{Interval: time.Hour, RunOnStart: true}, nil))
	defer stop()

	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{block: make(chan struct{})}
	stop := runScheduler(t, NewScheduler(sweeper, SchedulerConfig{Interval: 5 * time.Millisecond, RunOnStart: true}, nil))

	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), sweeper.calls.Load(), "ticks during a running sweep must be skipped")

	close(sweeper.block)
	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, time.Millisecond)
	stop()
	require.False(t, sweeper.overlap.Load())
}

func TestSchedulerToleratesManualSweep(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{err: ErrSweepInProgress}
	stop := runScheduler(t, NewScheduler(sweeper, SchedulerConfig{Interval: 5 * time.Millisecond}, nil))
	defer stop()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestNewSchedulerDefaultInterval(t *testing.T) {
	t.Parallel()

	sched := NewScheduler(&countingSweeper{}, SchedulerConfig{}, nil)
	require.Equal(t, DefaultInterval, sched.cfg.Interval)
}
