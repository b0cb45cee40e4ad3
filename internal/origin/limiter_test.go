package origin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mwhitford/politefetch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"https default port", "https://Example.com/a/b", "https://example.com:443", false},
		{"https explicit port", "https://example.com:443/x", "https://example.com:443", false},
		{"http default port", "http://example.com", "http://example.com:80", false},
		{"custom port", "http://example.com:8080/x", "http://example.com:8080", false},
		{"no scheme", "example.com/x", "", true},
		{"garbage", "http://%zz", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Key(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestConcurrencyBound(t *testing.T) {
	t.Parallel()

	const limit = 3
	l := New(Config{MaxPerOrigin: limit})

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), "https://x.test:443", func(context.Context) error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestFIFOWithinOrigin(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxPerOrigin: 1})
	const key = "https://x.test:443"

	var mu sync.Mutex
	var order []int

	// Occupy the only slot so subsequent tasks must queue.
	blockerRunning := make(chan struct{})
	releaseBlocker := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Do(context.Background(), key, func(context.Context) error {
			close(blockerRunning)
			<-releaseBlocker
			return nil
		})
	}()
	<-blockerRunning

	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), key, func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Give each goroutine time to join the queue in submission order.
		require.Eventually(t, func() bool {
			l.mu.Lock()
			defer l.mu.Unlock()
			state := l.origins[key]
			return state != nil && len(state.pending) == i
		}, time.Second, time.Millisecond)
	}

	close(releaseBlocker)
	wg.Wait()

	require.Equal(t, []int{1, 2, 3}, order)
}

func TestTaskErrorDoesNotStallQueue(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxPerOrigin: 1})
	const key = "https://x.test:443"

	boom := errors.New("boom")
	err := l.Do(context.Background(), key, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The failed task must have released its slot.
	ran := false
	err = l.Do(context.Background(), key, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestOriginsRunIndependently(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxPerOrigin: 1})

	aBlocked := make(chan struct{})
	releaseA := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Do(context.Background(), "https://a.test:443", func(context.Context) error {
			close(aBlocked)
			<-releaseA
			return nil
		})
	}()
	<-aBlocked

	// Origin B is not held up by origin A's saturation.
	done := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), "https://b.test:443", func(context.Context) error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent origin was blocked")
	}
	close(releaseA)
	wg.Wait()
}

func TestDrainedOriginStateIsDiscarded(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxPerOrigin: 2})

	for i := 0; i < 5; i++ {
		err := l.Do(context.Background(), "https://x.test:443", func(context.Context) error {
			return nil
		})
		require.NoError(t, err)
	}

	require.Equal(t, 0, l.Tracked())
	require.Equal(t, 0, l.Active("https://x.test:443"))
}

func TestQueuedWaiterHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxPerOrigin: 1})
	const key = "https://x.test:443"

	running := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Do(context.Background(), key, func(context.Context) error {
			close(running)
			<-release
			return nil
		})
	}()
	<-running

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Do(ctx, key, func(context.Context) error { return nil })
	}()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		state := l.origins[key]
		return state != nil && len(state.pending) == 1
	}, time.Second, time.Millisecond)

	cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)

	// The abandoned waiter must not leave a dangling queue entry.
	close(release)
	wg.Wait()
	require.Eventually(t, func() bool { return l.Tracked() == 0 }, time.Second, time.Millisecond)
}

func TestPacingDelaysSecondRequest(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxPerOrigin: 2, RPS: 10, Burst: 1})
	const key = "https://x.test:443"
	ctx := context.Background()

	require.NoError(t, l.Do(ctx, key, func(context.Context) error { return nil }))

	start := time.Now()
	require.NoError(t, l.Do(ctx, key, func(context.Context) error { return nil }))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
