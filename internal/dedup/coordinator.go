// Package dedup coalesces concurrent fetches of the same key: while one is
// in flight, later callers attach to its outcome instead of issuing their
// own. This is orthogonal to caching, which covers completed fetches.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mwhitford/politefetch/internal/clock"
)

const (
	defaultStaleAfter    = 30 * time.Second
	defaultSweepInterval = 30 * time.Second
)

// Config controls tracker staleness and sweep cadence.
type Config struct {
	// StaleAfter is how long an unsettled tracker may deduplicate new
	// callers before the sweeper treats it as abandoned.
	StaleAfter time.Duration
	// SweepInterval is how often abandoned trackers are reaped.
	SweepInterval time.Duration
	Clock         clock.Clock
	Logger        *zap.Logger
}

// Coordinator tracks in-flight operations per key. It owns a periodic sweep
// goroutine; callers must Close it when done.
type Coordinator struct {
	mu       sync.Mutex
	cfg      Config
	inflight map[string]*tracker

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

type tracker struct {
	done      chan struct{}
	value     any
	err       error
	startedAt time.Time
}

// New creates a Coordinator and starts its sweep loop.
func New(cfg Config) *Coordinator {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:      cfg,
		inflight: make(map[string]*tracker),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the sweep loop. It does not cancel in-flight operations.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	<-c.doneCh
}

// Do returns the outcome of the in-flight operation for key, starting one
// via produce if none exists. All callers for the same key observe the
// identical value or error. The second return reports whether this caller
// attached to an existing operation rather than producing.
func (c *Coordinator) Do(ctx context.Context, key string, produce func() (any, error)) (any, bool, error) {
	c.mu.Lock()
	if t, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-t.done:
			return t.value, true, t.err
		case <-ctx.Done():
			return nil, true, fmt.Errorf("await shared fetch: %w", ctx.Err())
		}
	}
	t := &tracker{
		done:      make(chan struct{}),
		startedAt: c.cfg.Clock.Now(),
	}
	c.inflight[key] = t
	c.mu.Unlock()

	t.value, t.err = produce()
	close(t.done)

	c.mu.Lock()
	// The sweeper may have reaped this tracker and a new one may be live;
	// only remove our own.
	if cur, ok := c.inflight[key]; ok && cur == t {
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	return t.value, false, t.err
}

// Inflight reports the number of tracked operations.
func (c *Coordinator) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// sweepLoop periodically drops trackers older than StaleAfter. This is a
// leak guard for operations that never settle; it does not cancel them, it
// only stops deduplicating against them.
func (c *Coordinator) sweepLoop() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) sweep() {
	now := c.cfg.Clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, t := range c.inflight {
		if now.Sub(t.startedAt) > c.cfg.StaleAfter {
			delete(c.inflight, key)
			c.cfg.Logger.Warn("reaped stale in-flight tracker",
				zap.String("key", key),
				zap.Time("started_at", t.startedAt),
			)
		}
	}
}
