// Package api hosts the HTTP command surface for operators. Notable routes:
//   - GET /healthz and /readyz for health checks.
//   - GET /metrics for Prometheus scraping.
//   - /v1/sources to track, untrack and list category pages.
//   - /v1/pingrole to set or clear the role mentioned under notifications.
//   - POST /v1/sweep to run a pass immediately, GET /v1/sweep for its status.
package api
