package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeOrigin(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"origin key", "https://example.com:443", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeOrigin(tc.input); got != tc.expected {
				t.Errorf("SanitizeOrigin(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	fetchesTotal = nil
	cacheEventsTotal = nil
	retriesTotal = nil
	inflightFetches = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || cacheEventsTotal == nil ||
		retriesTotal == nil || inflightFetches == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveFetch("https://test.example", "2xx", 1024)
	if val := testutil.ToFloat64(fetchesTotal); val != 1 {
		t.Errorf("Expected fetchesTotal to be 1, got %f", val)
	}

	FetchStarted()
	if val := testutil.ToFloat64(inflightFetches); val != 1 {
		t.Errorf("Expected inflightFetches to be 1, got %f", val)
	}
	FetchFinished()
	if val := testutil.ToFloat64(inflightFetches); val != 0 {
		t.Errorf("Expected inflightFetches to be 0, got %f", val)
	}

	// The remaining helpers only need to not panic with labels applied.
	ObserveCacheEvent("hit")
	ObserveRetry("https://test.example")
	ObserveDedupAttach()
	ObserveOriginWait("https://test.example", 5*time.Millisecond)
	ObserveHTTPRequest("GET", "/v1/scrape", 200, 10*time.Millisecond)
}

// Fuzz test for SanitizeOrigin.
func FuzzSanitizeOrigin(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeOrigin(orig)
		if sanitized == "" {
			t.Errorf("SanitizeOrigin(%q) returned an empty string", orig)
		}
	})
}
