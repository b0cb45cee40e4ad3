// Package metrics exposes Prometheus collectors for the fetch engine.
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

var (
	fetchesTotal       *prometheus.CounterVec
	fetchBytesTotal    *prometheus.CounterVec
	cacheEventsTotal   *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
	dedupAttachesTotal prometheus.Counter
	inflightFetches    prometheus.Gauge
	originWaitSeconds  *prometheus.HistogramVec
	httpRequestsTotal  *prometheus.CounterVec
	httpDurationSecs   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_fetches_total",
				Help: "Total fetch attempts, labeled by origin host and status class.",
			},
			[]string{"origin", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_fetch_bytes_total",
				Help: "Total bytes fetched, labeled by origin host.",
			},
			[]string{"origin"},
		)

		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_cache_events_total",
				Help: "Freshness cache lookups, labeled by outcome (hit, stale, miss).",
			},
			[]string{"event"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_retries_total",
				Help: "Retry attempts issued by the batch driver, labeled by origin host.",
			},
			[]string{"origin"},
		)

		dedupAttachesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "politefetch_dedup_attaches_total",
				Help: "Callers that attached to an already in-flight fetch instead of issuing a new one.",
			},
		)

		inflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "politefetch_inflight_fetches",
				Help: "Number of transport calls currently in flight.",
			},
		)

		originWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "politefetch_origin_wait_seconds",
				Help:    "Histogram of time spent waiting for a per-origin admission slot.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"origin"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_http_requests_total",
				Help: "Total API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "politefetch_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeOrigin extracts a lowercase hostname label from a URL or origin key.
// It returns "unknown" if the value is invalid.
func SanitizeOrigin(rawURL string) string {
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

// ObserveFetch records one completed transport call.
func ObserveFetch(origin string, statusClass string, bytesFetched int) {
	fetchesTotal.WithLabelValues(SanitizeOrigin(origin), statusClass).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeOrigin(origin)).Add(float64(bytesFetched))
	}
}

// ObserveCacheEvent records a cache lookup outcome ("hit", "stale" or "miss").
func ObserveCacheEvent(event string) {
	cacheEventsTotal.WithLabelValues(event).Inc()
}

// ObserveRetry records a retry attempt for the given origin.
func ObserveRetry(origin string) {
	retriesTotal.WithLabelValues(SanitizeOrigin(origin)).Inc()
}

// ObserveDedupAttach records a caller joining an in-flight fetch.
func ObserveDedupAttach() {
	dedupAttachesTotal.Inc()
}

// FetchStarted increments the in-flight gauge.
func FetchStarted() {
	inflightFetches.Inc()
}

// FetchFinished decrements the in-flight gauge.
func FetchFinished() {
	inflightFetches.Dec()
}

// ObserveOriginWait records time spent queued behind an origin's slot cap.
func ObserveOriginWait(origin string, d time.Duration) {
	originWaitSeconds.WithLabelValues(SanitizeOrigin(origin)).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the API request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
