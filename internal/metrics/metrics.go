// Package metrics exposes Prometheus collectors for the deal watcher.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification outcome labels.
const (
	ResultSent  = "sent"
	ResultError = "error"
)

var (
	sweepsTotal                *prometheus.CounterVec
	listingsFetchedTotal       *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	fetchFailuresTotal         *prometheus.CounterVec
	sweepTicksSkippedTotal     prometheus.Counter
	sweepDurationSeconds       prometheus.Histogram
	trackedSources             prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	robotsFallbackTotal        prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sweepsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwatch_sweeps_total",
				Help: "Total number of per-source sweeps, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		listingsFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwatch_listings_fetched_total",
				Help: "Total number of listings extracted from category pages, labeled by site.",
			},
			[]string{"site"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwatch_notifications_total",
				Help: "Total number of deal notifications attempted, labeled by result.",
			},
			[]string{"result"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwatch_fetch_failures_total",
				Help: "Total number of category page fetches that produced no page, labeled by site.",
			},
			[]string{"site"},
		)

		sweepTicksSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dealwatch_sweep_ticks_skipped_total",
				Help: "Scheduler ticks skipped because the previous sweep was still running.",
			},
		)

		sweepDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dealwatch_sweep_duration_seconds",
				Help:    "Histogram of full sweep durations across all tracked sources.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		trackedSources = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dealwatch_tracked_sources",
				Help: "Number of category URLs currently tracked.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealwatch_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dealwatch_robots_fallback_total",
				Help: "robots.txt lookups that fell back to allow-all after repeated TLS failures.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSweep records one per-source sweep. Empty fetches are counted separately
// from sweeps that produced listings.
func ObserveSweep(source string, fetched int, empty bool) {
	site := SanitizeSite(source)
	outcome := "ok"
	if empty {
		outcome = "empty"
		fetchFailuresTotal.WithLabelValues(site).Inc()
	}
	sweepsTotal.WithLabelValues(site, outcome).Inc()
	if fetched > 0 {
		listingsFetchedTotal.WithLabelValues(site).Add(float64(fetched))
	}
}

// ObserveNotification counts one notification attempt.
func ObserveNotification(result string) {
	notificationsTotal.WithLabelValues(result).Inc()
}

// ObserveSweepDuration records how long a full sweep took.
func ObserveSweepDuration(duration time.Duration) {
	sweepDurationSeconds.Observe(duration.Seconds())
}

// ObserveTickSkipped counts a scheduler tick dropped because a sweep was in flight.
func ObserveTickSkipped() {
	sweepTicksSkippedTotal.Inc()
}

// SetTrackedSources reports the current tracking store size.
func SetTrackedSources(n int) {
	trackedSources.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt lookup replaced with an allow-all response.
func ObserveRobotsFallback() {
	robotsFallbackTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
