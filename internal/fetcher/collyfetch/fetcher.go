// Package collyfetch implements the transport capability using the Colly
// collector.
package collyfetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mwhitford/politefetch/internal/fetcher"
)

const sourceName = "colly"

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	DefaultTimeout time.Duration
}

// Fetcher implements fetcher.Fetcher by cloning a base collector per call.
type Fetcher struct {
	cfg           Config
	transport     *http.Transport
	baseCollector *colly.Collector
}

// New builds a Fetcher with its own pooled transport.
func New(cfg Config) *Fetcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.IgnoreRobotsTxt())
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Close releases pooled connections.
func (f *Fetcher) Close() {
	f.transport.CloseIdleConnections()
}

// Fetch executes a single HTTP GET using a cloned collector.
func (f *Fetcher) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	var (
		result   fetcher.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &result, &fetchErr); err != nil {
		return fetcher.Response{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request fetcher.Request,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.DefaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*result = fetcher.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
			Source:     sourceName,
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses through OnError; keep the
		// classified response so the engine can see 304s and error codes.
		if r != nil && r.StatusCode != 0 {
			headers := http.Header{}
			if r.Headers != nil {
				headers = r.Headers.Clone()
			}
			*result = fetcher.Response{
				URL:        request.URL,
				StatusCode: r.StatusCode,
				Headers:    headers,
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
				Source:     sourceName,
			}
			return
		}
		*fetchErr = err
	})

	return collector
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	result *fetcher.Response,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly fetch failed: %w", *fetchErr)
		}
		// Visit reports non-2xx statuses as errors; a classified response
		// captured by a hook supersedes that.
		if err != nil && result.StatusCode == 0 {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
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
