// Package server assembles dealwatch's dependencies and runs the long-lived process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/dealwatch/internal/api"
	"github.com/JakeFAU/dealwatch/internal/clock/system"
	"github.com/JakeFAU/dealwatch/internal/config"
	"github.com/JakeFAU/dealwatch/internal/extract"
	collyfetcher "github.com/JakeFAU/dealwatch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/dealwatch/internal/fetcher/headless"
	"github.com/JakeFAU/dealwatch/internal/headless/detector"
	"github.com/JakeFAU/dealwatch/internal/logging"
	"github.com/JakeFAU/dealwatch/internal/metrics"
	discordsink "github.com/JakeFAU/dealwatch/internal/notify/discord"
	"github.com/JakeFAU/dealwatch/internal/notify/logsink"
	memorysink "github.com/JakeFAU/dealwatch/internal/notify/memory"
	pubsubsink "github.com/JakeFAU/dealwatch/internal/notify/pubsub"
	"github.com/JakeFAU/dealwatch/internal/policy/ratelimit"
	gcsstorage "github.com/JakeFAU/dealwatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/dealwatch/internal/storage/local"
	memorystorage "github.com/JakeFAU/dealwatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/dealwatch/internal/storage/postgres"
	"github.com/JakeFAU/dealwatch/internal/telemetry"
	"github.com/JakeFAU/dealwatch/internal/tracker"
	"github.com/JakeFAU/dealwatch/internal/tracking"
	"github.com/JakeFAU/dealwatch/internal/watch"
)

// Version is reported in trace resources. Overridden at link time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	service   *tracker.Service
	scheduler *tracker.Scheduler
	apiServer *api.Server

	storage      *storage.Client
	pubsubClient *pubsub.Client
	pubsubSink   *pubsubsink.Sink
	seenStore    *pgstore.SeenStore
	headless     *headlessfetcher.Fetcher
	tracer       *sdktrace.TracerProvider

	closeOnce sync.Once
}

// Service exposes the tracker so one-shot commands can drive it directly.
func (a *App) Service() *tracker.Service {
	return a.service
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the scheduler and the HTTP server and blocks until ctx is cancelled or a
// termination signal arrives. An in-flight sweep is allowed to finish before Run returns.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()

	return a.Close(shutdownCtx)
}

// Close releases clients and flushes telemetry. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeInfrastructure()
		a.closeObservability(ctx)
	})
	return nil
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubSink != nil {
		a.pubsubSink.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.seenStore != nil {
		a.seenStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	// Sync on stderr returns EINVAL on some platforms; nothing useful to do with it.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies and restores tracked sources.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (app *App, err error) {
	metrics.Init()
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
			if app.tracer != nil {
				_ = app.tracer.Shutdown(context.WithoutCancel(ctx))
			}
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("tracking_backend", cfg.Tracking.Backend),
		zap.String("seen_backend", cfg.Seen.Backend),
		zap.String("notify_backend", cfg.Notify.Backend),
	)

	if err = setupTelemetry(ctx, app); err != nil {
		return nil, err
	}

	backend, err := setupTracking(ctx, app)
	if err != nil {
		return nil, err
	}

	seen, err := setupSeen(ctx, app)
	if err != nil {
		return nil, err
	}

	fetcher, err := setupFetcher(app)
	if err != nil {
		return nil, err
	}

	sink, err := setupSink(ctx, app)
	if err != nil {
		return nil, err
	}

	filter := watch.NewFilter(cfg.Filter.Blocklist)
	app.logger.Info("spam filter configured", zap.Strings("blocklist", filter.Terms()))

	app.service, err = tracker.NewService(tracker.Config{
		Fetcher:     fetcher,
		Sink:        sink,
		Store:       tracking.New(backend, logger.Named("tracking")),
		Engine:      watch.NewDiffEngine(filter),
		Seen:        seen,
		Clock:       system.New(),
		Logger:      logger.Named("tracker"),
		Concurrency: cfg.Scheduler.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("tracker init failed: %w", err)
	}
	if err = app.service.Load(ctx); err != nil {
		return nil, err
	}

	app.scheduler = tracker.NewScheduler(app.service, tracker.SchedulerConfig{
		Interval:   cfg.Scheduler.Interval,
		RunOnStart: cfg.Scheduler.RunOnStart,
	}, logger.Named("scheduler"))

	app.apiServer = api.NewServer(app.service, api.Options{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
		Ready:       app.ready,
	}, logger)

	return app, nil
}

func (a *App) ready(ctx context.Context) error {
	if a.seenStore == nil {
		return nil
	}
	if err := a.seenStore.Ping(ctx); err != nil {
		return fmt.Errorf("seen store unavailable: %w", err)
	}
	return nil
}

func setupTelemetry(ctx context.Context, app *App) error {
	if !app.cfg.Telemetry.Enabled {
		app.logger.Debug("tracing disabled")
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName:  app.cfg.Telemetry.ServiceName,
		Version:      Version,
		SampleRatio:  app.cfg.Telemetry.SampleRatio,
		Exporter:     app.cfg.Telemetry.Exporter,
		OTLPEndpoint: app.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: app.cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracer = tp
	app.logger.Info("tracing enabled",
		zap.String("exporter", app.cfg.Telemetry.Exporter),
		zap.Float64("sample_ratio", app.cfg.Telemetry.SampleRatio),
	)
	return nil
}

func setupTracking(ctx context.Context, app *App) (tracking.Backend, error) {
	switch app.cfg.Tracking.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS tracking backend")
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		backend, err := gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Tracking.GCSBucket,
			Object: app.cfg.Tracking.GCSObject,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs tracking backend init failed: %w", err)
		}
		app.logger.Debug("GCS tracking backend", zap.String("uri", backend.URI()))
		return backend, nil
	default:
		backend, err := localstorage.New(localstorage.Config{Path: app.cfg.Tracking.Path})
		if err != nil {
			return nil, fmt.Errorf("local tracking backend init failed: %w", err)
		}
		app.logger.Info("using local tracking backend", zap.String("path", backend.Path()))
		return backend, nil
	}
}

func setupSeen(ctx context.Context, app *App) (watch.SeenStore, error) {
	if app.cfg.Seen.Backend != config.BackendPostgres {
		app.logger.Warn("seen links kept in memory; listings may be re-announced after a restart")
		return memorystorage.NewSeenStore(), nil
	}
	store, err := pgstore.NewSeenStore(ctx, pgstore.SeenStoreConfig{
		DSN:      app.cfg.DB.DSN,
		Table:    app.cfg.DB.Table,
		MaxConns: app.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("seen store init failed: %w", err)
	}
	app.seenStore = store
	app.logger.Info("seen store initialized", zap.String("table", app.cfg.DB.Table))
	return store, nil
}

func setupFetcher(app *App) (*extract.Fetcher, error) {
	cfg := app.cfg
	raw := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		RespectRobots: cfg.Fetch.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	app.logger.Info("using colly fetcher", zap.String("user_agent", cfg.Fetch.UserAgent))

	extractor, err := extract.NewExtractor(extract.Config{
		Selectors: extract.Selectors{
			Heading:       cfg.Extract.Heading,
			Listing:       cfg.Extract.Listing,
			Title:         cfg.Extract.Title,
			Price:         cfg.Extract.Price,
			Link:          cfg.Extract.Link,
			Description:   cfg.Extract.Description,
			FeaturedClass: cfg.Extract.FeaturedClass,
		},
		SiteRoot:     cfg.Extract.SiteRoot,
		UnknownLabel: cfg.Extract.UnknownLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}

	fetcherCfg := extract.FetcherConfig{
		Raw:       raw,
		Extractor: extractor,
		Logger:    app.logger.Named("fetch"),
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Fetch.RateLimitRPS,
			DefaultBurst: cfg.Fetch.RateLimitBurst,
		}),
		Timeout: cfg.Scheduler.SourceTimeout,
	}
	app.logger.Info("rate limiter configured",
		zap.Float64("default_rps", cfg.Fetch.RateLimitRPS),
		zap.Int("default_burst", cfg.Fetch.RateLimitBurst),
	)

	if cfg.Headless.Enabled {
		app.headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			WaitSelector:      cfg.Extract.Listing,
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed, continuing without it", zap.Error(err))
		} else {
			fetcherCfg.Headless = app.headless
			fetcherCfg.Promoter = detector.NewHeuristic(cfg.Headless.PromotionThreshold, cfg.Extract.Listing)
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}

	f, err := extract.NewFetcher(fetcherCfg)
	if err != nil {
		return nil, fmt.Errorf("page fetcher init failed: %w", err)
	}
	return f, nil
}

func setupSink(ctx context.Context, app *App) (watch.NotificationSink, error) {
	switch app.cfg.Notify.Backend {
	case config.BackendDiscord:
		sink, err := discordsink.New(app.cfg.Discord.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord sink init failed: %w", err)
		}
		app.logger.Info("using discord notification sink")
		return sink, nil
	case config.BackendPubSub:
		var err error
		app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubSink = pubsubsink.New(app.pubsubClient.Topic(app.cfg.PubSub.TopicName), system.New())
		app.logger.Info("Pub/Sub notification sink initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName),
		)
		return app.pubsubSink, nil
	case config.BackendMemory:
		app.logger.Info("using in-memory notification sink")
		return memorysink.New(), nil
	default:
		app.logger.Info("using log notification sink")
		return logsink.New(app.logger), nil
	}
}
