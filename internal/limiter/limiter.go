package limiter

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter over a timestamp list: at any
// instant at most `limit` acceptances fall inside the window. When full,
// Allow reports how long until the oldest acceptance ages out.
type RateLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	timestamps []time.Time

	now func() time.Time // swapped in tests
}

func New(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records an acceptance if capacity remains in the window.
// Returns (false, wait) when the bucket is full.
func (rl *RateLimiter) Allow() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	// Drop timestamps that fell out of the window.
	kept := rl.timestamps[:0]
	for _, t := range rl.timestamps {
		if now.Sub(t) < rl.window {
			kept = append(kept, t)
		}
	}
	rl.timestamps = kept

	if len(rl.timestamps) < rl.limit {
		rl.timestamps = append(rl.timestamps, now)
		return true, 0
	}

	oldest := rl.timestamps[0]
	return false, rl.window - now.Sub(oldest)
}
