// Package config loads and validates dealwatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Backend names accepted by the *.backend keys.
const (
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLog      = "log"
	BackendDiscord  = "discord"
	BackendPubSub   = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Seen      SeenConfig      `mapstructure:"seen"`
	DB        DBConfig        `mapstructure:"db"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SchedulerConfig governs the sweep loop.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	Concurrency   int           `mapstructure:"concurrency"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
}

// FetchConfig configures the plain HTTP fetcher.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxParallel        int  `mapstructure:"max_parallel"`
	NavTimeoutSec      int  `mapstructure:"nav_timeout_seconds"`
	PromotionThreshold int  `mapstructure:"promotion_threshold"`
}

// ExtractConfig holds the category page selectors.
type ExtractConfig struct {
	SiteRoot      string `mapstructure:"site_root"`
	UnknownLabel  string `mapstructure:"unknown_label"`
	Heading       string `mapstructure:"heading"`
	Listing       string `mapstructure:"listing"`
	Title         string `mapstructure:"title"`
	Price         string `mapstructure:"price"`
	Link          string `mapstructure:"link"`
	Description   string `mapstructure:"description"`
	FeaturedClass string `mapstructure:"featured_class"`
}

// FilterConfig holds the spam blocklist.
type FilterConfig struct {
	Blocklist []string `mapstructure:"blocklist"`
}

// TrackingConfig selects where the tracked source snapshot lives.
type TrackingConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSObject string `mapstructure:"gcs_object"`
}

// SeenConfig selects where seen link sets are kept.
type SeenConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// NotifyConfig selects the notification sink.
type NotifyConfig struct {
	Backend string `mapstructure:"backend"`
}

// DiscordConfig holds bot credentials.
type DiscordConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key gets a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("scheduler.interval", 60*time.Second)
	v.SetDefault("scheduler.concurrency", 1)
	v.SetDefault("scheduler.source_timeout", 30*time.Second)
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("fetch.user_agent", "dealwatch/0.1")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.rate_limit_rps", 1.0)
	v.SetDefault("fetch.rate_limit_burst", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("extract.site_root", "https://www.marktplaats.nl")
	v.SetDefault("extract.unknown_label", "Unknown")
	v.SetDefault("extract.heading", "h1")
	v.SetDefault("extract.listing", "div.hz-Listing-listview-content")
	v.SetDefault("extract.title", "h3.hz-Listing-title")
	v.SetDefault("extract.price", "p.hz-Listing-price")
	v.SetDefault("extract.link", "a.hz-Listing-coverLink")
	v.SetDefault("extract.description", "p.hz-Listing-description")
	v.SetDefault("extract.featured_class", "hz-Listing--featured")
	v.SetDefault("filter.blocklist", []string{"winkel", "factuur", "nieuw"})
	v.SetDefault("tracking.backend", BackendLocal)
	v.SetDefault("tracking.path", "tracking_data.json")
	v.SetDefault("tracking.gcs_bucket", "")
	v.SetDefault("tracking.gcs_object", "tracking_data.json")
	v.SetDefault("seen.backend", BackendMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "seen_links")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("notify.backend", BackendLog)
	v.SetDefault("discord.bot_token", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "dealwatch")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be > 0")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}

	switch c.Tracking.Backend {
	case BackendLocal:
		if c.Tracking.Path == "" {
			return fmt.Errorf("tracking.path must be set for the local backend")
		}
	case BackendGCS:
		if c.Tracking.GCSBucket == "" {
			return fmt.Errorf("tracking.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("tracking.backend %q is not one of local, gcs", c.Tracking.Backend)
	}

	switch c.Seen.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres seen backend")
		}
	default:
		return fmt.Errorf("seen.backend %q is not one of memory, postgres", c.Seen.Backend)
	}

	switch c.Notify.Backend {
	case BackendLog, BackendMemory:
	case BackendDiscord:
		if c.Discord.BotToken == "" {
			return fmt.Errorf("discord.bot_token must be set for the discord notify backend")
		}
	case BackendPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the pubsub notify backend")
		}
	default:
		return fmt.Errorf("notify.backend %q is not one of log, memory, discord, pubsub", c.Notify.Backend)
	}

	switch c.Telemetry.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("telemetry.exporter %q is not one of none, stdout, otlp", c.Telemetry.Exporter)
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}

// FetchTimeout converts fetch.timeout_seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// NavTimeout converts headless.nav_timeout_seconds into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
