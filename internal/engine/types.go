// Package engine composes the freshness cache, the per-origin limiter and
// the in-flight coordinator behind a single-fetch and batch-fetch contract.
package engine

import (
	"time"
)

// Result is the outcome of one successful fetch.
type Result struct {
	// URL is the canonicalized fetch target.
	URL string `json:"url"`
	// Payload is the extracted content; opaque to the engine.
	Payload any `json:"payload"`
	// StatusCode is the HTTP status of the response that produced the
	// payload (the original response for revalidated or cached content).
	StatusCode int `json:"status_code"`
	// Cached reports whether the payload came from the freshness cache,
	// either as a fresh hit or via a not-modified revalidation.
	Cached bool `json:"cached"`
	// Source identifies the transport variant that produced the payload.
	Source string `json:"source"`
	// Fingerprint is the content digest of the raw body, stable across
	// cached and revalidated reads of the same content.
	Fingerprint string `json:"fingerprint,omitempty"`
	// Duration is the wall-clock time this caller's fetch took.
	Duration time.Duration `json:"duration"`
}

// Options shape a single call. Zero values defer to the engine defaults.
type Options struct {
	// NoCache disables cache reads and writes for this call.
	NoCache bool
	// Timeout is the per-attempt deadline.
	Timeout time.Duration
	// Retries is the number of additional attempts beyond the first;
	// nil defers to the engine default.
	Retries *int
	// RetryDelay is the base backoff unit, scaled linearly per attempt.
	RetryDelay time.Duration
}

// Retry returns n as a Retries option value.
func Retry(n int) *int {
	return &n
}

// BatchOutcome aggregates per-URL results of a batch fetch. Every input URL
// lands in exactly one of the two maps unless the batch was cancelled before
// that URL was attempted.
type BatchOutcome struct {
	Succeeded map[string]*Result
	Failed    map[string]error
}

// cachedPayload is what the engine stores in cache entries: the extracted
// payload plus enough provenance to rebuild a Result on a hit.
type cachedPayload struct {
	payload     any
	statusCode  int
	source      string
	fingerprint string
}
