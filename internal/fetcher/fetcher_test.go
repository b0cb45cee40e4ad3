package fetcher

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResponseClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code        int
		class       string
		isError     bool
		notModified bool
	}{
		{200, "2xx", false, false},
		{204, "2xx", false, false},
		{301, "3xx", false, false},
		{304, "3xx", false, true},
		{404, "4xx", true, false},
		{429, "4xx", true, false},
		{500, "5xx", true, false},
		{503, "5xx", true, false},
		{0, "other", false, false},
	}

	for _, tt := range tests {
		r := Response{StatusCode: tt.code, Headers: http.Header{}}
		require.Equal(t, tt.class, r.StatusClass(), "code %d", tt.code)
		require.Equal(t, tt.isError, r.IsError(), "code %d", tt.code)
		require.Equal(t, tt.notModified, r.NotModified(), "code %d", tt.code)
	}
}

func TestResponseValidators(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("ETag", `"v1"`)
	h.Set("Last-Modified", "Wed, 01 Jul 2026 00:00:00 GMT")
	r := Response{Headers: h}

	require.Equal(t, `"v1"`, r.ETag())
	require.Equal(t, "Wed, 01 Jul 2026 00:00:00 GMT", r.LastModified())
}

func TestContentType(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	r := Response{Headers: h}
	require.Equal(t, "text/html", r.ContentType())

	r.Headers.Set("Content-Type", "application/json")
	require.Equal(t, "application/json", r.ContentType())
}

func TestCacheTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		cacheControl string
		wantTTL      time.Duration
		wantOK       bool
		wantStorable bool
	}{
		{"absent", "", 0, false, true},
		{"max-age", "max-age=120", 2 * time.Minute, true, true},
		{"max-age with public", "public, max-age=600", 10 * time.Minute, true, true},
		{"no-store", "no-store", 0, false, false},
		{"no-cache", "no-cache", 0, false, false},
		{"no-store wins", "max-age=600, no-store", 0, false, false},
		{"zero max-age", "max-age=0", 0, false, true},
		{"malformed max-age", "max-age=banana", 0, false, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			if tt.cacheControl != "" {
				h.Set("Cache-Control", tt.cacheControl)
			}
			r := Response{Headers: h}
			ttl, ok, storable := r.CacheTTL()
			require.Equal(t, tt.wantTTL, ttl)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantStorable, storable)
		})
	}
}

func TestConditionalHeaders(t *testing.T) {
	t.Parallel()

	h := ConditionalHeaders(`"v1"`, "Wed, 01 Jul 2026 00:00:00 GMT")
	require.Equal(t, `"v1"`, h.Get("If-None-Match"))
	require.Equal(t, "Wed, 01 Jul 2026 00:00:00 GMT", h.Get("If-Modified-Since"))

	h = ConditionalHeaders(`"v1"`, "")
	require.Equal(t, `"v1"`, h.Get("If-None-Match"))
	require.Empty(t, h.Get("If-Modified-Since"))

	h = ConditionalHeaders("", "")
	require.Empty(t, h)
}
