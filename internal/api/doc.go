// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape for a single fetch.
//   - POST /v1/batch for a concurrent batch with per-URL outcomes.
//   - DELETE /v1/cache to drop cached entries.
package api
