package security

import (
	"fmt"
	"time"

	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
)

type rateWindow struct {
	timestamps []time.Time // ascending
	window     time.Duration
	resetAt    time.Time
}

// prune drops timestamps at or before cutoff
func (w *rateWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}

// WindowCounter is a per-key sliding-window request counter
type WindowCounter struct {
	windows *shardedMap[*rateWindow]
	clock   clock.Clock
}

// NewWindowCounter creates a WindowCounter with the given shard count
func NewWindowCounter(clk clock.Clock, shards int) *WindowCounter {
	return &WindowCounter{
		windows: newShardedMap[*rateWindow](shards),
		clock:   clk,
	}
}

// Check counts a request for key against maxRequests per window. Rejected
// requests are not recorded. A non-positive window or maxRequests is a
// configuration error.
func (wc *WindowCounter) Check(key string, window time.Duration, maxRequests int) (models.RateLimitDecision, error) {
	if window <= 0 || maxRequests <= 0 {
		return models.RateLimitDecision{}, fmt.Errorf("%w: window %s and max requests %d must be positive",
			models.ErrInvalidConfig, window, maxRequests)
	}

	now := wc.clock.Now()
	var decision models.RateLimitDecision

	wc.windows.with(key, func(items map[string]*rateWindow) {
		w, ok := items[key]
		if !ok {
			w = &rateWindow{}
			items[key] = w
		}
		w.window = window
		w.prune(now.Add(-window))

		if len(w.timestamps) == 0 {
			w.resetAt = now.Add(window)
		} else {
			w.resetAt = w.timestamps[0].Add(window)
		}

		if len(w.timestamps) >= maxRequests {
			decision = models.RateLimitDecision{
				Allowed:    false,
				Remaining:  0,
				ResetAt:    w.resetAt,
				RetryAfter: w.resetAt.Sub(now),
			}
			return
		}

		w.timestamps = append(w.timestamps, now)
		decision = models.RateLimitDecision{
			Allowed:   true,
			Remaining: maxRequests - len(w.timestamps),
			ResetAt:   w.resetAt,
		}
	})

	return decision, nil
}

// Reset forgets all requests recorded for key
func (wc *WindowCounter) Reset(key string) {
	wc.windows.with(key, func(items map[string]*rateWindow) {
		delete(items, key)
	})
}

// Sweep removes windows that hold no live requests and are past their reset time
func (wc *WindowCounter) Sweep() int {
	now := wc.clock.Now()
	return wc.windows.sweep(func(_ string, w *rateWindow) bool {
		w.prune(now.Add(-w.window))
		return len(w.timestamps) == 0 && !now.Before(w.resetAt)
	})
}

// Len returns the number of tracked keys
func (wc *WindowCounter) Len() int {
	return wc.windows.len()
}
