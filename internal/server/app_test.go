package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/dealwatch/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server:    config.ServerConfig{Port: 0},
		Scheduler: config.SchedulerConfig{Interval: time.Hour, Concurrency: 1, SourceTimeout: time.Second},
		Fetch:     config.FetchConfig{UserAgent: "dealwatch-test", TimeoutSeconds: 1, RateLimitRPS: 0},
		Extract: config.ExtractConfig{
			SiteRoot:      "https://www.marktplaats.nl",
			UnknownLabel:  "Unknown",
			Heading:       "h1",
			Listing:       "div.hz-Listing-listview-content",
			Title:         "h3.hz-Listing-title",
			Price:         "p.hz-Listing-price",
			Link:          "a.hz-Listing-coverLink",
			Description:   "p.hz-Listing-description",
			FeaturedClass: "hz-Listing--featured",
		},
		Filter:   config.FilterConfig{Blocklist: []string{"winkel"}},
		Tracking: config.TrackingConfig{Backend: config.BackendLocal, Path: filepath.Join(t.TempDir(), "tracking_data.json")},
		Seen:     config.SeenConfig{Backend: config.BackendMemory},
		Notify:   config.NotifyConfig{Backend: config.BackendMemory},
	}
}

func TestBuildWithLoggerWiresMemoryBackends(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := testConfig(t)

	app, err := BuildWithLogger(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NotNil(t, app.Service())
	assert.Empty(t, app.Service().List())
	assert.Equal(t, 1, logs.FilterMessage("using in-memory notification sink").Len())
	assert.Equal(t, 1, logs.FilterMessage("using local tracking backend").Len())

	filterLogs := logs.FilterMessage("spam filter configured").All()
	require.Len(t, filterLogs, 1)
	assert.Equal(t, []any{"winkel"}, filterLogs[0].ContextMap()["blocklist"])
}

func TestHandlerExposesSweepStatus(t *testing.T) {
	app, err := BuildWithLogger(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sweep", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sweeping":false}`, rec.Body.String())
}

func TestBuildWithLoggerRestoresTrackedSources(t *testing.T) {
	cfg := testConfig(t)
	snapshot := `{"https://www.marktplaats.nl/l/fietsen/":{"channelId":"c1","budget":300,"category":"Fietsen"}}`
	require.NoError(t, os.WriteFile(cfg.Tracking.Path, []byte(snapshot), 0o600))

	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	list := app.Service().List()
	require.Len(t, list, 1)
	assert.Equal(t, "Fietsen", list[0].Category)
	require.NotNil(t, list[0].Budget)
	assert.Equal(t, 300, *list[0].Budget)
}

func TestBuildWithLoggerRejectsBadExtractConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extract.SiteRoot = "not-absolute"

	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "extractor init failed")
}

func TestHandlerServesHealthAndReady(t *testing.T) {
	app, err := BuildWithLogger(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app, err := BuildWithLogger(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.NoError(t, app.Close(context.Background()))
}

func TestBuildWithLoggerTelemetryEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry = config.TelemetryConfig{Enabled: true, ServiceName: "dealwatch-test", SampleRatio: 0.5}

	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, app.tracer)
	require.NoError(t, app.Close(context.Background()))
}
