package oracle

import (
	"context"
	"sync"
	"time"
)

// rateLimitedOracle bounds outbound request rate with a sliding window.
// Calls that would exceed the limit block until the window frees up or the
// context is cancelled, so provider-side rate limits are not tripped in
// the first place.
type rateLimitedOracle struct {
	inner  Oracle
	limit  int
	window time.Duration

	mu    sync.Mutex
	calls []time.Time
}

// WithRateLimit wraps an Oracle with a requests-per-minute cap.
// A non-positive limit returns the Oracle unchanged.
func WithRateLimit(inner Oracle, requestsPerMinute int) Oracle {
	if requestsPerMinute <= 0 {
		return inner
	}
	return &rateLimitedOracle{
		inner:  inner,
		limit:  requestsPerMinute,
		window: time.Minute,
	}
}

// Generate implements Oracle.
func (r *rateLimitedOracle) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	return r.inner.Generate(ctx, prompt, opts)
}

// acquire blocks until a request slot is available within the window.
func (r *rateLimitedOracle) acquire(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		r.prune(now)
		if len(r.calls) < r.limit {
			r.calls = append(r.calls, now)
			r.mu.Unlock()
			return nil
		}
		wait := r.calls[0].Add(r.window).Sub(now)
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// prune drops timestamps that have left the sliding window.
// Caller must hold the mutex.
func (r *rateLimitedOracle) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	kept := r.calls[:0]
	for _, t := range r.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.calls = kept
}
