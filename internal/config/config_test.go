package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.Interval != 60*time.Second {
		t.Fatalf("expected 60s interval, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Concurrency != 1 {
		t.Fatalf("expected sequential sweeps by default, got %d", cfg.Scheduler.Concurrency)
	}
	if cfg.Tracking.Backend != BackendLocal || cfg.Tracking.Path != "tracking_data.json" {
		t.Fatalf("unexpected tracking defaults: %+v", cfg.Tracking)
	}
	if cfg.Seen.Backend != BackendMemory || cfg.Notify.Backend != BackendLog {
		t.Fatalf("unexpected backend defaults: seen=%s notify=%s", cfg.Seen.Backend, cfg.Notify.Backend)
	}
	if got := strings.Join(cfg.Filter.Blocklist, ","); got != "winkel,factuur,nieuw" {
		t.Fatalf("unexpected blocklist %q", got)
	}
	if cfg.Extract.Listing != "div.hz-Listing-listview-content" || cfg.Extract.SiteRoot != "https://www.marktplaats.nl" {
		t.Fatalf("unexpected extract defaults: %+v", cfg.Extract)
	}
	if cfg.Telemetry.Exporter != "none" || cfg.Logging.Level != "" {
		t.Fatalf("unexpected telemetry/logging defaults: %+v %+v", cfg.Telemetry, cfg.Logging)
	}
	if got := cfg.FetchTimeout(); got != 15*time.Second {
		t.Fatalf("expected fetch timeout 15s, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
scheduler:
  interval: 2m
  concurrency: 3
  source_timeout: 45s
  run_on_start: true
fetch:
  user_agent: deal-agent
  respect_robots: true
  timeout_seconds: 20
  rate_limit_rps: 0.5
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
extract:
  unknown_label: Onbekend
filter:
  blocklist: [winkel, outlet]
tracking:
  backend: gcs
  gcs_bucket: deals-bucket
seen:
  backend: postgres
db:
  dsn: postgres://localhost/dealwatch
  table: seen_links_test
notify:
  backend: discord
discord:
  bot_token: token
telemetry:
  enabled: true
  exporter: otlp
  otlp_endpoint: collector:4317
  otlp_insecure: true
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Scheduler.Interval != 2*time.Minute || cfg.Scheduler.SourceTimeout != 45*time.Second ||
		cfg.Scheduler.Concurrency != 3 || !cfg.Scheduler.RunOnStart {
		t.Fatalf("expected scheduler overrides to apply: %+v", cfg.Scheduler)
	}
	if !cfg.Fetch.RespectRobots || cfg.Fetch.RateLimitRPS != 0.5 || cfg.Fetch.UserAgent != "deal-agent" {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Extract.UnknownLabel != "Onbekend" || cfg.Extract.Heading != "h1" {
		t.Fatalf("expected partial extract override: %+v", cfg.Extract)
	}
	if got := strings.Join(cfg.Filter.Blocklist, ","); got != "winkel,outlet" {
		t.Fatalf("unexpected blocklist %q", got)
	}
	if cfg.Tracking.Backend != BackendGCS || cfg.Tracking.GCSObject != "tracking_data.json" {
		t.Fatalf("unexpected tracking config: %+v", cfg.Tracking)
	}
	if cfg.DB.Table != "seen_links_test" || cfg.DB.MaxConns != 4 {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Exporter != "otlp" ||
		cfg.Telemetry.OTLPEndpoint != "collector:4317" || !cfg.Telemetry.OTLPInsecure {
		t.Fatalf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
	if got := cfg.NavTimeout(); got != 30*time.Second {
		t.Fatalf("expected nav timeout 30s, got %v", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DEALWATCH_SCHEDULER_INTERVAL", "90s")
	t.Setenv("DEALWATCH_NOTIFY_BACKEND", "pubsub")
	t.Setenv("DEALWATCH_PUBSUB_PROJECT_ID", "proj")
	t.Setenv("DEALWATCH_PUBSUB_TOPIC_NAME", "deals")
	t.Setenv("DEALWATCH_TRACKING_PATH", "/data/tracking.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.Interval != 90*time.Second {
		t.Fatalf("expected env interval, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Notify.Backend != BackendPubSub || cfg.PubSub.TopicName != "deals" {
		t.Fatalf("expected pubsub notify from env: %+v %+v", cfg.Notify, cfg.PubSub)
	}
	if cfg.Tracking.Path != "/data/tracking.json" {
		t.Fatalf("expected env tracking path, got %q", cfg.Tracking.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Scheduler: SchedulerConfig{Interval: time.Minute, Concurrency: 1},
		Fetch:     FetchConfig{TimeoutSeconds: 10},
		Tracking:  TrackingConfig{Backend: BackendLocal, Path: "tracking_data.json"},
		Seen:      SeenConfig{Backend: BackendMemory},
		Notify:    NotifyConfig{Backend: BackendLog},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid interval", func(c *Config) { c.Scheduler.Interval = 0 }, "scheduler.interval"},
		{"invalid concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }, "scheduler.concurrency"},
		{"invalid timeout", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, "fetch.timeout_seconds"},
		{"headless missing max parallel", func(c *Config) {
			c.Headless.Enabled = true
			c.Headless.MaxParallel = 0
		}, "headless.max_parallel"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"local without path", func(c *Config) { c.Tracking.Path = "" }, "tracking.path"},
		{"gcs without bucket", func(c *Config) { c.Tracking.Backend = BackendGCS }, "tracking.gcs_bucket"},
		{"unknown tracking backend", func(c *Config) { c.Tracking.Backend = "s3" }, "tracking.backend"},
		{"postgres without dsn", func(c *Config) { c.Seen.Backend = BackendPostgres }, "db.dsn"},
		{"unknown seen backend", func(c *Config) { c.Seen.Backend = "redis" }, "seen.backend"},
		{"discord without token", func(c *Config) { c.Notify.Backend = BackendDiscord }, "discord.bot_token"},
		{"pubsub without topic", func(c *Config) { c.Notify.Backend = BackendPubSub }, "pubsub.project_id"},
		{"unknown notify backend", func(c *Config) { c.Notify.Backend = "slack" }, "notify.backend"},
		{"unknown trace exporter", func(c *Config) { c.Telemetry.Exporter = "jaeger" }, "telemetry.exporter"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
