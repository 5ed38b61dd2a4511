package orchestrator

import (
	"sync"
	"time"
)

const defaultRateWindow = time.Minute

// RateLimiter bounds how many responses the agent produces inside a sliding
// time window. It is safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	times  []time.Time

	now func() time.Time
}

// NewRateLimiter returns a limiter allowing max events per 60-second window.
// A max of zero or less disables limiting.
func NewRateLimiter(max int) *RateLimiter {
	return &RateLimiter{
		max:    max,
		window: defaultRateWindow,
		now:    time.Now,
	}
}

// Allow reports whether another event fits in the current window and, when
// it does, records it.
func (r *RateLimiter) Allow() bool {
	if r.max <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneLocked(now)
	if len(r.times) >= r.max {
		return false
	}
	r.times = append(r.times, now)
	return true
}

// Remaining returns how many events still fit in the current window.
func (r *RateLimiter) Remaining() int {
	if r.max <= 0 {
		return 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(r.now())
	if n := r.max - len(r.times); n > 0 {
		return n
	}
	return 0
}

// Reset discards all recorded events.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = r.times[:0]
}

// pruneLocked drops events that have slid out of the window.
func (r *RateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	kept := r.times[:0]
	for _, t := range r.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.times = kept
}
