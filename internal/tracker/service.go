// Package tracker coordinates tracked sources, the diff engine and notification delivery.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/dealwatch/internal/clock/system"
	"github.com/JakeFAU/dealwatch/internal/metrics"
	"github.com/JakeFAU/dealwatch/internal/telemetry"
	"github.com/JakeFAU/dealwatch/internal/tracking"
	"github.com/JakeFAU/dealwatch/internal/watch"
)

var (
	// ErrSweepInProgress is returned when a sweep is requested while another is running.
	ErrSweepInProgress = errors.New("sweep already in progress")
	// ErrInvalidSource is returned when a track request has an unusable URL or channel.
	ErrInvalidSource = errors.New("invalid source")
)

// Config wires a Service. Fetcher, Sink and Store are required.
type Config struct {
	Fetcher watch.PageFetcher
	Sink    watch.NotificationSink
	Store   *tracking.Store
	Engine  *watch.DiffEngine
	// Seen persists seen link sets across restarts. Nil keeps them in memory only.
	Seen        watch.SeenStore
	Clock       watch.Clock
	Logger      *zap.Logger
	Concurrency int
}

// Service owns the tracking state. Commands, the diff step and seen-store I/O run under
// one mutex; fetches and sends happen outside it.
type Service struct {
	fetcher     watch.PageFetcher
	sink        watch.NotificationSink
	seen        watch.SeenStore
	clock       watch.Clock
	logger      *zap.Logger
	concurrency int

	mu       sync.Mutex
	store    *tracking.Store
	engine   *watch.DiffEngine
	pingRole string

	sweeping atomic.Bool
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Fetcher == nil:
		return nil, fmt.Errorf("page fetcher is required")
	case cfg.Sink == nil:
		return nil, fmt.Errorf("notification sink is required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("tracking store is required")
	}
	engine := cfg.Engine
	if engine == nil {
		engine = watch.NewDiffEngine(nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	metrics.Init()
	return &Service{
		fetcher:     cfg.Fetcher,
		sink:        cfg.Sink,
		seen:        cfg.Seen,
		clock:       clock,
		logger:      logger,
		concurrency: concurrency,
		store:       cfg.Store,
		engine:      engine,
	}, nil
}

// Load restores tracked sources from the store backend.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Load(ctx); err != nil {
		return fmt.Errorf("load tracked sources: %w", err)
	}
	metrics.SetTrackedSources(s.store.Len())
	s.logger.Info("tracked sources loaded", zap.Int("count", s.store.Len()))
	return nil
}

// Track fetches rawURL once to learn its category label, then starts watching it.
// Re-tracking a URL overwrites its channel, budget and label.
func (s *Service) Track(ctx context.Context, rawURL, channelID string, budget *int) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	channelID = strings.TrimSpace(channelID)
	if err := validateSource(rawURL, channelID); err != nil {
		return "", err
	}
	if budget != nil && *budget <= 0 {
		budget = nil
	}

	page := s.fetcher.Fetch(ctx, rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.store.Snapshot()
	s.store.Upsert(watch.TrackedSource{
		URL:       rawURL,
		ChannelID: channelID,
		Budget:    budget,
		Category:  page.Category,
	})
	if err := s.store.Save(ctx); err != nil {
		s.store.Restore(prior)
		return "", fmt.Errorf("persist tracked source: %w", err)
	}
	metrics.SetTrackedSources(s.store.Len())
	s.logger.Info("tracking source",
		zap.String("url", rawURL),
		zap.String("category", page.Category),
		zap.String("channel_id", channelID),
	)
	return page.Category, nil
}

// Untrack stops watching the first source labelled label and discards its seen links.
// Nothing changes when the updated mapping cannot be persisted.
func (s *Service) Untrack(ctx context.Context, label string) (watch.TrackedSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.store.Snapshot()
	removed, err := s.store.RemoveByLabel(label)
	if err != nil {
		return watch.TrackedSource{}, fmt.Errorf("untrack %q: %w", label, err)
	}
	if err := s.store.Save(ctx); err != nil {
		s.store.Restore(prior)
		return watch.TrackedSource{}, fmt.Errorf("persist untrack: %w", err)
	}
	s.engine.Forget(removed.URL)
	metrics.SetTrackedSources(s.store.Len())
	if s.seen != nil {
		if err := s.seen.Delete(context.WithoutCancel(ctx), removed.URL); err != nil {
			s.logger.Warn("failed to delete persisted seen links",
				zap.String("url", removed.URL), zap.Error(err))
		}
	}
	s.logger.Info("untracked source", zap.String("url", removed.URL), zap.String("category", label))
	return removed, nil
}

// List returns the tracked sources in insertion order.
func (s *Service) List() []watch.SourceSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources := s.store.List()
	out := make([]watch.SourceSummary, 0, len(sources))
	for _, src := range sources {
		out = append(out, watch.SourceSummary{Category: src.Category, Budget: src.Budget})
	}
	return out
}

// SetPingRole sets the role mentioned under every notification. An empty id clears it.
func (s *Service) SetPingRole(roleID string) string {
	mention := watch.RoleMention(roleID)
	s.mu.Lock()
	s.pingRole = mention
	s.mu.Unlock()
	s.logger.Info("ping role updated", zap.String("ping_role", mention))
	return mention
}

// PingRole returns the current role mention, or "" when none is set.
func (s *Service) PingRole() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingRole
}

// Sweeping reports whether a sweep is currently running.
func (s *Service) Sweeping() bool {
	return s.sweeping.Load()
}

// SweepAll runs one pass over a snapshot of the tracked sources. Only one pass runs at a
// time; a concurrent call returns ErrSweepInProgress.
func (s *Service) SweepAll(ctx context.Context) ([]watch.SweepResult, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.sweeping.Store(false)

	ctx, span := telemetry.Tracer().Start(ctx, "tracker.sweep_all")
	defer span.End()

	start := s.clock.Now()
	s.mu.Lock()
	sources := s.store.List()
	s.mu.Unlock()
	span.SetAttributes(attribute.Int("dealwatch.sources", len(sources)))

	results := make([]watch.SweepResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = s.sweepSource(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := s.clock.Now().Sub(start)
	metrics.ObserveSweepDuration(elapsed)
	s.logger.Debug("sweep finished", zap.Int("sources", len(sources)), zap.Duration("duration", elapsed))
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "sweep interrupted")
		return results, fmt.Errorf("sweep interrupted: %w", err)
	}
	return results, nil
}

// SweepSource sweeps the single tracked source with the given URL.
func (s *Service) SweepSource(ctx context.Context, rawURL string) (watch.SweepResult, error) {
	s.mu.Lock()
	src, ok := s.store.Get(rawURL)
	s.mu.Unlock()
	if !ok {
		return watch.SweepResult{}, fmt.Errorf("sweep %s: %w", rawURL, tracking.ErrNotFound)
	}
	return s.sweepSource(ctx, src), nil
}

func (s *Service) sweepSource(ctx context.Context, src watch.TrackedSource) (result watch.SweepResult) {
	ctx, span := telemetry.Tracer().Start(ctx, "tracker.sweep_source",
		trace.WithAttributes(attribute.String("dealwatch.source", src.URL)))
	defer func() {
		span.SetAttributes(
			attribute.Int("dealwatch.fetched", result.Fetched),
			attribute.Int("dealwatch.notified", result.Notified),
			attribute.Int("dealwatch.failed", result.Failed),
		)
		span.End()
	}()

	start := s.clock.Now()
	result = watch.SweepResult{Source: src.URL, SweptAt: start}
	logger := s.logger.With(zap.String("url", src.URL))

	page := s.fetcher.Fetch(ctx, src.URL)
	result.Fetched = len(page.Listings)
	if len(page.Listings) == 0 {
		result.EmptyFetch = true
		result.Duration = s.clock.Now().Sub(start)
		metrics.ObserveSweep(src.URL, 0, true)
		logger.Debug("no listings fetched; keeping previous seen links")
		return result
	}

	s.mu.Lock()
	current, tracked := s.store.Get(src.URL)
	if !tracked {
		s.mu.Unlock()
		logger.Debug("source untracked during sweep; discarding results")
		result.Duration = s.clock.Now().Sub(start)
		return result
	}
	// A cancelled sweep must not mark links seen that it will never announce.
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		logger.Debug("sweep cancelled before diff; discarding results", zap.Error(err))
		result.Duration = s.clock.Now().Sub(start)
		return result
	}
	// From here on the diff is committed: seen-store I/O and every send run to completion
	// even if the sweep is cancelled.
	commitCtx := context.WithoutCancel(ctx)
	s.restoreSeen(commitCtx, src.URL)
	fresh := s.engine.Sweep(src.URL, current.Budget, page.Listings)
	if s.seen != nil {
		if err := s.seen.Replace(commitCtx, src.URL, s.engine.Seen(src.URL)); err != nil {
			logger.Warn("failed to persist seen links", zap.Error(err))
		}
	}
	pingRole := s.pingRole
	s.mu.Unlock()

	metrics.ObserveSweep(src.URL, result.Fetched, false)

	for _, listing := range fresh {
		delivery := s.deliver(commitCtx, current, listing, pingRole)
		result.Deliveries = append(result.Deliveries, delivery)
		if delivery.OK() {
			result.Notified++
		} else {
			result.Failed++
		}
	}
	result.Duration = s.clock.Now().Sub(start)
	if len(fresh) > 0 {
		logger.Info("new listings announced",
			zap.String("category", current.Category),
			zap.Int("notified", result.Notified),
			zap.Int("failed", result.Failed),
		)
	}
	return result
}

// restoreSeen primes the engine with persisted links for a source it has not seen yet.
// Callers hold s.mu.
func (s *Service) restoreSeen(ctx context.Context, source string) {
	if s.seen == nil || s.engine.Primed(source) {
		return
	}
	links, ok, err := s.seen.Load(ctx, source)
	if err != nil {
		s.logger.Warn("failed to load persisted seen links", zap.String("url", source), zap.Error(err))
		return
	}
	if ok {
		s.engine.Prime(source, links)
	}
}

func (s *Service) deliver(ctx context.Context, src watch.TrackedSource, l watch.Listing, pingRole string) watch.Delivery {
	text := watch.FormatMessage(src.Category, l, pingRole)
	delivery := watch.Delivery{ChannelID: src.ChannelID, Link: l.Link}
	if err := s.sink.Notify(ctx, src.ChannelID, text); err != nil {
		delivery.Err = err
		metrics.ObserveNotification(metrics.ResultError)
		s.logger.Warn("notification failed",
			zap.String("channel_id", src.ChannelID),
			zap.String("link", l.Link),
			zap.Error(err),
		)
		return delivery
	}
	metrics.ObserveNotification(metrics.ResultSent)
	return delivery
}

func validateSource(rawURL, channelID string) error {
	if channelID == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalidSource)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidSource, rawURL)
	}
	return nil
}
