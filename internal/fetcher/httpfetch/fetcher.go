// Package httpfetch implements the transport capability over a pooled
// net/http client.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mwhitford/politefetch/internal/fetcher"
)

const sourceName = "http"

// Config controls client behavior.
type Config struct {
	UserAgent string
	// DefaultTimeout applies when a request carries no per-attempt deadline.
	DefaultTimeout time.Duration
	// MaxBodyBytes bounds response reads; 0 means 10 MiB.
	MaxBodyBytes int64
}

// Fetcher issues plain HTTP GETs with connection pooling. The pool is owned
// by this instance; Close tears it down deterministically.
type Fetcher struct {
	cfg       Config
	client    *http.Client
	transport *http.Transport
}

// New builds a Fetcher with its own connection pool.
func New(cfg Config) *Fetcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	transport := newHTTPTransport()
	return &Fetcher{
		cfg:       cfg,
		transport: transport,
		client:    &http.Client{Transport: transport},
	}
}

// Close releases pooled connections.
func (f *Fetcher) Close() {
	f.transport.CloseIdleConnections()
}

// Fetch executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("build request: %w", err)
	}
	for key, values := range request.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if f.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("http fetch: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read side already captured

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("read body: %w", err)
	}

	return fetcher.Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
		Source:     sourceName,
	}, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
