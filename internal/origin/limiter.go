package origin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mwhitford/politefetch/internal/metrics"
)

// Config holds limiter configuration.
type Config struct {
	// MaxPerOrigin caps simultaneous in-flight tasks for any one origin.
	MaxPerOrigin int
	// RPS, when > 0, additionally paces task starts per origin.
	RPS    float64
	Burst  int
	Logger *zap.Logger
}

// Limiter manages per-origin admission state. Admission is strictly FIFO
// within an origin; origins are independent of each other.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	origins map[string]*originState
	pacers  map[string]*rate.Limiter
}

type originState struct {
	active  int
	pending []*waiter
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.MaxPerOrigin <= 0 {
		cfg.MaxPerOrigin = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Limiter{
		cfg:     cfg,
		origins: make(map[string]*originState),
		pacers:  make(map[string]*rate.Limiter),
	}
}

// Do runs task once a slot for originKey is available, releasing the slot
// when the task returns. Task errors go to this caller only; they never
// prevent the queue from draining.
func (l *Limiter) Do(ctx context.Context, originKey string, task func(ctx context.Context) error) error {
	start := time.Now()
	if err := l.acquire(ctx, originKey); err != nil {
		return err
	}
	defer l.release(originKey)
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveOriginWait(originKey, waited)
	}

	if err := l.pace(ctx, originKey); err != nil {
		return err
	}
	return task(ctx)
}

// acquire claims an in-flight slot for originKey, queuing FIFO when the
// origin is saturated.
func (l *Limiter) acquire(ctx context.Context, originKey string) error {
	l.mu.Lock()
	state, ok := l.origins[originKey]
	if !ok {
		state = &originState{}
		l.origins[originKey] = state
	}
	if state.active < l.cfg.MaxPerOrigin && len(state.pending) == 0 {
		state.active++
		l.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	state.pending = append(state.pending, w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.abandon(originKey, w)
		return fmt.Errorf("origin admission wait: %w", ctx.Err())
	}
}

// abandon removes a cancelled waiter; if the slot was granted in the
// meantime it is handed back so the queue keeps draining.
func (l *Limiter) abandon(originKey string, w *waiter) {
	l.mu.Lock()
	if w.granted {
		l.mu.Unlock()
		l.release(originKey)
		return
	}
	state, ok := l.origins[originKey]
	if ok {
		for i, pending := range state.pending {
			if pending == w {
				state.pending = append(state.pending[:i], state.pending[i+1:]...)
				break
			}
		}
		l.gcLocked(originKey, state)
	}
	l.mu.Unlock()
}

// release frees a slot and promotes the next queued waiter, if any. A state
// with no activity and no queue is garbage-collected so a long crawl over
// many origins stays bounded.
func (l *Limiter) release(originKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.origins[originKey]
	if !ok {
		return
	}
	state.active--
	if state.active < 0 {
		state.active = 0
	}
	if len(state.pending) > 0 {
		next := state.pending[0]
		state.pending = state.pending[1:]
		state.active++
		next.granted = true
		close(next.ready)
		return
	}
	l.gcLocked(originKey, state)
}

func (l *Limiter) gcLocked(originKey string, state *originState) {
	if state.active == 0 && len(state.pending) == 0 {
		delete(l.origins, originKey)
		l.cfg.Logger.Debug("origin state discarded", zap.String("origin", originKey))
	}
}

// pace blocks until the origin's rate budget admits another request.
func (l *Limiter) pace(ctx context.Context, originKey string) error {
	if l.cfg.RPS <= 0 {
		return nil
	}
	l.mu.Lock()
	pacer, ok := l.pacers[originKey]
	if !ok {
		pacer = rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)
		l.pacers[originKey] = pacer
	}
	l.mu.Unlock()

	if err := pacer.Wait(ctx); err != nil {
		return fmt.Errorf("origin pace wait: %w", err)
	}
	return nil
}

// Active reports the current in-flight count for originKey.
func (l *Limiter) Active(originKey string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.origins[originKey]; ok {
		return state.active
	}
	return 0
}

// Tracked reports how many origin states are currently retained.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.origins)
}
