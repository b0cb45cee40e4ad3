package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mwhitford/politefetch/internal/cache"
	"github.com/mwhitford/politefetch/internal/clock"
	"github.com/mwhitford/politefetch/internal/dedup"
	"github.com/mwhitford/politefetch/internal/extract"
	"github.com/mwhitford/politefetch/internal/fetcher"
	"github.com/mwhitford/politefetch/internal/hash"
	"github.com/mwhitford/politefetch/internal/metrics"
	"github.com/mwhitford/politefetch/internal/origin"
	"github.com/mwhitford/politefetch/internal/progress"
	"github.com/mwhitford/politefetch/internal/robots"
)

// Config controls engine defaults and wires optional collaborators.
type Config struct {
	// DefaultTimeout is the per-attempt deadline when a call specifies none.
	DefaultTimeout time.Duration
	// DefaultRetries is the retry budget when a call specifies none.
	DefaultRetries int
	// DefaultRetryDelay is the base backoff unit.
	DefaultRetryDelay time.Duration

	// CacheTTL and CacheMaxEntries configure the freshness cache.
	CacheTTL        time.Duration
	CacheMaxEntries int
	// CacheDisabled turns the cache off for every call, as if each carried
	// the NoCache option.
	CacheDisabled bool

	// MaxPerOrigin caps simultaneous fetches per origin; OriginRPS
	// additionally paces request starts when > 0.
	MaxPerOrigin int
	OriginRPS    float64

	// Robots, when set, is consulted before every transport call.
	Robots robots.Policy
	// Sink receives lifecycle events; it is advisory and may be nil.
	Sink progress.Sink

	Clock  clock.Clock
	Logger *zap.Logger
}

// Engine owns one cache, one limiter and one in-flight coordinator. It is
// safe for concurrent use; Close releases the coordinator's sweep loop.
type Engine struct {
	cfg       Config
	transport fetcher.Fetcher
	extractor extract.Extractor
	cache     *cache.Cache
	limiter   *origin.Limiter
	coord     *dedup.Coordinator
	clock     clock.Clock
	logger    *zap.Logger
}

const defaultRetryDelay = 250 * time.Millisecond

// New constructs an Engine around the given transport and extractor.
func New(cfg Config, transport fetcher.Fetcher, extractor extract.Extractor) *Engine {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Second
	}
	if cfg.DefaultRetries < 0 {
		cfg.DefaultRetries = 0
	}
	if cfg.DefaultRetryDelay <= 0 {
		cfg.DefaultRetryDelay = defaultRetryDelay
	}
	if cfg.MaxPerOrigin <= 0 {
		cfg.MaxPerOrigin = 2
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.NewHTML()
	}
	metrics.Init()

	return &Engine{
		cfg:       cfg,
		transport: transport,
		extractor: extractor,
		cache: cache.New(cache.Config{
			DefaultTTL: cfg.CacheTTL,
			MaxEntries: cfg.CacheMaxEntries,
			Clock:      cfg.Clock,
			Logger:     cfg.Logger,
		}),
		limiter: origin.New(origin.Config{
			MaxPerOrigin: cfg.MaxPerOrigin,
			RPS:          cfg.OriginRPS,
			Logger:       cfg.Logger,
		}),
		coord: dedup.New(dedup.Config{
			Clock:  cfg.Clock,
			Logger: cfg.Logger,
		}),
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
}

// Close stops background work. In-flight fetches are not interrupted.
func (e *Engine) Close() {
	e.coord.Close()
}

// ClearCache drops all cached entries.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// Scrape fetches one URL, consulting the in-flight coordinator, the
// freshness cache and the origin limiter in that order. Concurrent callers
// for the same key share a single transport call.
func (e *Engine) Scrape(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	key, originKey, err := fetchIdentity(rawURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	value, attached, err := e.coord.Do(ctx, key, func() (any, error) {
		return e.execute(ctx, key, originKey, opts)
	})
	if attached {
		metrics.ObserveDedupAttach()
	}
	if err != nil {
		return nil, err
	}

	result, ok := value.(*Result)
	if !ok {
		return nil, fmt.Errorf("unexpected shared outcome type %T", value)
	}
	if attached {
		// Shared outcomes carry the producer's payload; the elapsed time
		// is this caller's own.
		shared := *result
		shared.Duration = time.Since(start)
		return &shared, nil
	}
	return result, nil
}

// execute runs the single-fetch state machine for one key.
func (e *Engine) execute(ctx context.Context, key, originKey string, opts Options) (*Result, error) {
	start := time.Now()
	useCache := !opts.NoCache && !e.cfg.CacheDisabled

	var staleEntry *cache.Entry
	if useCache {
		fresh, stale := e.cache.Lookup(key)
		if fresh != nil {
			metrics.ObserveCacheEvent("hit")
			e.logger.Debug("cache hit", zap.String("url", key))
			return resultFromEntry(key, fresh, time.Since(start)), nil
		}
		staleEntry = stale
		if stale != nil {
			metrics.ObserveCacheEvent("stale")
		} else {
			metrics.ObserveCacheEvent("miss")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s canceled before start: %w", key, err)
	}

	if e.cfg.Robots != nil && !e.cfg.Robots.Allowed(ctx, key) {
		return nil, fmt.Errorf("fetch %s: %w", key, ErrRobotsDisallowed)
	}

	var result *Result
	err := e.limiter.Do(ctx, originKey, func(ctx context.Context) error {
		var attemptErr error
		result, attemptErr = e.attempt(ctx, key, staleEntry, useCache, opts)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// attempt issues one transport call and classifies the response.
func (e *Engine) attempt(
	ctx context.Context,
	key string,
	staleEntry *cache.Entry,
	useCache bool,
	opts Options,
) (*Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := fetcher.ConditionalHeaders("", "")
	if staleEntry != nil && !staleEntry.Validator.IsZero() {
		headers = fetcher.ConditionalHeaders(
			staleEntry.Validator.ETag,
			staleEntry.Validator.LastModified,
		)
	}

	metrics.FetchStarted()
	resp, err := e.transport.Fetch(attemptCtx, fetcher.Request{
		URL:     key,
		Headers: headers,
		Timeout: timeout,
	})
	metrics.FetchFinished()
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	metrics.ObserveFetch(key, resp.StatusClass(), len(resp.Body))

	if resp.NotModified() && staleEntry != nil {
		e.logger.Debug("revalidated stale entry", zap.String("url", key))
		return resultFromEntry(key, staleEntry, 0), nil
	}

	if resp.IsError() {
		return nil, &HTTPError{URL: key, StatusCode: resp.StatusCode}
	}

	progress.Notify(e.cfg.Sink, progress.Event{
		Phase:   progress.PhaseExtracting,
		Message: "extracting content",
		URL:     key,
	})
	payload, err := e.extractor.Extract(key, resp.ContentType(), resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", key, err)
	}

	fingerprint := hash.Fingerprint(resp.Body)
	stored := cachedPayload{
		payload:     payload,
		statusCode:  resp.StatusCode,
		source:      resp.Source,
		fingerprint: fingerprint,
	}
	// Cancelled work must not write back; a canceled context here means the
	// caller already gave up between transport and store.
	if useCache && ctx.Err() == nil {
		ttl, hasTTL, storable := resp.CacheTTL()
		if storable {
			entry := cache.Entry{
				Payload: stored,
				Validator: cache.Validator{
					ETag:         resp.ETag(),
					LastModified: resp.LastModified(),
				},
			}
			if hasTTL {
				entry.TTLOverride = ttl
			}
			e.cache.Set(key, entry)
		}
	}

	return &Result{
		URL:         key,
		Payload:     payload,
		StatusCode:  resp.StatusCode,
		Cached:      false,
		Source:      resp.Source,
		Fingerprint: fingerprint,
	}, nil
}

// resultFromEntry rebuilds a caller-visible Result from a cache entry.
func resultFromEntry(key string, entry *cache.Entry, elapsed time.Duration) *Result {
	res := &Result{
		URL:      key,
		Cached:   true,
		Duration: elapsed,
	}
	if cp, ok := entry.Payload.(cachedPayload); ok {
		res.Payload = cp.payload
		res.StatusCode = cp.statusCode
		res.Source = cp.source
		res.Fingerprint = cp.fingerprint
		return res
	}
	res.Payload = entry.Payload
	return res
}
