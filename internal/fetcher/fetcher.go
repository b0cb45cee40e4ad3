// Package fetcher defines the transport capability the engine is written
// against, plus shared response classification helpers. Concrete variants
// (pooled net/http, colly, headless chrome) live in subpackages.
package fetcher

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Request captures everything needed to issue one transport call.
type Request struct {
	URL string
	// Headers carries caller-supplied headers, including conditional
	// revalidation tokens (If-None-Match, If-Modified-Since).
	Headers http.Header
	// Timeout is the per-attempt deadline; the transport must also honor
	// cancellation of the supplied context.
	Timeout time.Duration
}

// Response is the classified result of a transport call.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// Source identifies which transport variant produced the response.
	Source string
}

// Fetcher issues a single HTTP fetch. Implementations must support the
// request timeout and abort on context cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// ETag returns the entity tag validator, if any.
func (r Response) ETag() string {
	return r.Headers.Get("ETag")
}

// LastModified returns the Last-Modified validator, if any.
func (r Response) LastModified() string {
	return r.Headers.Get("Last-Modified")
}

// NotModified reports a 304 response to a conditional request.
func (r Response) NotModified() bool {
	return r.StatusCode == http.StatusNotModified
}

// IsError reports a client or server error status.
func (r Response) IsError() bool {
	return r.StatusCode >= 400
}

// ContentType returns the declared media type without parameters.
func (r Response) ContentType() string {
	ct := r.Headers.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// StatusClass groups the status code into 2xx/3xx/4xx/5xx for metrics.
func (r Response) StatusClass() string {
	switch {
	case r.StatusCode >= 200 && r.StatusCode < 300:
		return "2xx"
	case r.StatusCode >= 300 && r.StatusCode < 400:
		return "3xx"
	case r.StatusCode >= 400 && r.StatusCode < 500:
		return "4xx"
	case r.StatusCode >= 500 && r.StatusCode < 600:
		return "5xx"
	default:
		return "other"
	}
}

// CacheTTL derives a per-entry TTL override from the response Cache-Control
// directives. The second return is false when the response declares nothing
// usable; storable reports whether caching is permitted at all.
func (r Response) CacheTTL() (ttl time.Duration, ok bool, storable bool) {
	storable = true
	cc := r.Headers.Get("Cache-Control")
	if cc == "" {
		return 0, false, true
	}
	for _, directive := range strings.Split(cc, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		switch {
		case directive == "no-store":
			return 0, false, false
		case directive == "no-cache":
			// Strict HTTP would allow storing with mandatory revalidation;
			// here no-cache skips storage entirely, same as no-store.
			return 0, false, false
		case strings.HasPrefix(directive, "max-age="):
			secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil || secs < 0 {
				continue
			}
			ttl = time.Duration(secs) * time.Second
			ok = ttl > 0
		}
	}
	if ok {
		return ttl, true, true
	}
	return 0, false, storable
}

// ConditionalHeaders builds the revalidation headers for a stale entry's
// validator tokens. Empty tokens are skipped.
func ConditionalHeaders(etag, lastModified string) http.Header {
	h := http.Header{}
	if etag != "" {
		h.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		h.Set("If-Modified-Since", lastModified)
	}
	return h
}
