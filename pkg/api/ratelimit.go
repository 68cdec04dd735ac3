package api

import (
	"sync"
	"time"
)

// limiterSweepEvery is how many Allow calls pass between full sweeps of
// abandoned keys.
const limiterSweepEvery = 500

// RateLimiter is a per-key sliding window: at most maxCalls calls per key
// within the window. Keys whose entire window has expired are swept
// periodically so one-shot clients do not accumulate state forever. Safe for
// concurrent use.
type RateLimiter struct {
	maxCalls int
	window   time.Duration

	mu        sync.Mutex
	calls     map[string][]time.Time
	callCount int

	// now is swappable so tests can move the clock.
	now func() time.Time
}

// NewRateLimiter creates a limiter allowing maxCalls per key per window.
func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxCalls: maxCalls,
		window:   window,
		calls:    make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether the key may proceed, recording the call when it may.
// A denied call is not recorded against the window.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.callCount++
	if rl.callCount%limiterSweepEvery == 0 {
		rl.sweep(cutoff)
	}

	kept := rl.calls[key][:0]
	for _, t := range rl.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rl.maxCalls {
		rl.calls[key] = kept
		return false
	}
	rl.calls[key] = append(kept, now)
	return true
}

// sweep drops keys with no timestamp inside the window. Caller holds the
// lock.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for key, timestamps := range rl.calls {
		live := false
		for _, t := range timestamps {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(rl.calls, key)
		}
	}
}

// trackedKeys reports how many keys currently hold state, for tests.
func (rl *RateLimiter) trackedKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.calls)
}
