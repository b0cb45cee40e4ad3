// Package robots gates fetches on robots.txt directives, cached per origin.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/mwhitford/politefetch/internal/clock"
)

const (
	fetchTimeout   = 10 * time.Second
	maxRobotsBytes = 1 << 20
	defaultTTL     = time.Hour
)

// Policy decides whether a URL may be fetched.
type Policy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// AllowAll ignores robots.txt entirely.
type AllowAll struct{}

// Allowed implements Policy.
func (AllowAll) Allowed(context.Context, string) bool { return true }

// Gate enforces robots.txt per host with a TTL cache. Fetch or parse
// failures fail open: politeness should not turn an outage into a crawl
// stopper.
type Gate struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	clock     clock.Clock
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedRules
}

type cachedRules struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// Config controls Gate behavior.
type Config struct {
	UserAgent string
	TTL       time.Duration
	Clock     clock.Clock
	Logger    *zap.Logger
}

// NewGate builds a Gate; when respect is false an AllowAll policy is
// returned instead.
func NewGate(respect bool, cfg Config) Policy {
	if !respect {
		return AllowAll{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Gate{
		client:    &http.Client{Timeout: fetchTimeout},
		userAgent: cfg.UserAgent,
		ttl:       cfg.TTL,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		cache:     make(map[string]cachedRules),
	}
}

// Allowed implements Policy.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

func (g *Gate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	now := g.clock.Now()

	g.mu.Lock()
	if cached, ok := g.cache[hostKey]; ok && now.Sub(cached.fetchedAt) < g.ttl {
		g.mu.Unlock()
		return cached.data, nil
	}
	g.mu.Unlock()

	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // nothing useful to do on close failure

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}

	g.mu.Lock()
	g.cache[hostKey] = cachedRules{data: data, fetchedAt: now}
	g.mu.Unlock()
	return data, nil
}
