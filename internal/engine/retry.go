package engine

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mwhitford/politefetch/internal/metrics"
	"github.com/mwhitford/politefetch/internal/progress"
)

const maxJitter = 50 * time.Millisecond

// ScrapeMany fetches every URL concurrently and partitions the outcomes.
// A URL whose context is canceled before its first attempt appears in
// neither map. ScrapeMany never fails as a whole; per-URL errors land in
// BatchOutcome.Failed.
func (e *Engine) ScrapeMany(ctx context.Context, urls []string, opts Options) BatchOutcome {
	batchID := uuid.NewString()
	outcome := BatchOutcome{
		Succeeded: make(map[string]*Result, len(urls)),
		Failed:    make(map[string]error),
	}

	progress.Notify(e.cfg.Sink, progress.Event{
		Phase:   progress.PhaseStarting,
		Message: fmt.Sprintf("starting batch of %d", len(urls)),
		BatchID: batchID,
		Total:   len(urls),
	})

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, rawURL := range urls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(rawURL string) {
			defer wg.Done()
			result, attempted, err := e.scrapeWithRetry(ctx, rawURL, opts)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				outcome.Succeeded[rawURL] = result
			case attempted:
				outcome.Failed[rawURL] = err
			case !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
				outcome.Failed[rawURL] = err
			}
		}(rawURL)
	}
	wg.Wait()

	progress.Notify(e.cfg.Sink, progress.Event{
		Phase: progress.PhaseComplete,
		Message: fmt.Sprintf("batch complete: %d succeeded, %d failed",
			len(outcome.Succeeded), len(outcome.Failed)),
		BatchID:   batchID,
		Completed: len(outcome.Succeeded) + len(outcome.Failed),
		Total:     len(urls),
	})
	e.logger.Info("batch finished",
		zap.String("batch_id", batchID),
		zap.Int("requested", len(urls)),
		zap.Int("succeeded", len(outcome.Succeeded)),
		zap.Int("failed", len(outcome.Failed)),
	)
	return outcome
}

// scrapeWithRetry runs Scrape up to 1+retries times with linearly growing
// backoff. The bool reports whether the URL reached a real outcome, so
// callers can tell cancellation-before-work from a recordable failure.
func (e *Engine) scrapeWithRetry(ctx context.Context, rawURL string, opts Options) (*Result, bool, error) {
	if _, _, err := fetchIdentity(rawURL); err != nil {
		// A malformed target can never succeed; fail without a transport
		// attempt and without retrying.
		return nil, true, err
	}

	retries := e.cfg.DefaultRetries
	if opts.Retries != nil {
		retries = *opts.Retries
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = e.cfg.DefaultRetryDelay
	}

	var lastErr error
	attempted := false
	for attemptNum := 0; attemptNum <= retries; attemptNum++ {
		if attemptNum > 0 {
			if err := sleepBackoff(ctx, delay*time.Duration(attemptNum)); err != nil {
				return nil, attempted, nonNilErr(lastErr, err)
			}
			metrics.ObserveRetry(rawURL)
			e.logger.Debug("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attemptNum+1),
			)
		}
		if err := ctx.Err(); err != nil {
			return nil, attempted, nonNilErr(lastErr, err)
		}

		result, err := e.Scrape(ctx, rawURL, opts)
		attempted = true
		if err == nil {
			return result, true, nil
		}
		lastErr = err

		// Caller cancellation is not a transient condition.
		if ctx.Err() != nil {
			break
		}
	}
	return nil, attempted, lastErr
}

// nonNilErr prefers the real failure over the cancellation that ended the
// retry loop.
func nonNilErr(primary, fallback error) error {
	if primary != nil {
		return primary
	}
	return fallback
}

// sleepBackoff waits for d plus a small random jitter, or until ctx ends.
func sleepBackoff(ctx context.Context, d time.Duration) error {
	if n, err := crand.Int(crand.Reader, big.NewInt(int64(maxJitter))); err == nil {
		d += time.Duration(n.Int64())
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
