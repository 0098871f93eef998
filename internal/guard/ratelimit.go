package guard

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window log limiter: it tracks request timestamps
// per client and allows at most maxRequests within the trailing window.
// Entries older than the window are pruned lazily on each access.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	clients     map[string][]time.Time
	now         func() time.Time
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		clients:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow reports whether the client may make a request now, recording the
// request timestamp when it may.
func (r *RateLimiter) Allow(clientID string) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.pruneLocked(clientID, now)
	if len(history) >= r.maxRequests {
		return false
	}
	r.clients[clientID] = append(history, now)
	return true
}

// Reserve records the request when the client is under the limit. When the
// window is full it returns a RateLimitedError carrying the remaining wait.
func (r *RateLimiter) Reserve(clientID string) error {
	if r.Allow(clientID) {
		return nil
	}
	return &RateLimitedError{RetryAfter: r.WaitTime(clientID)}
}

// WaitTime returns how long the client must wait before its next request is
// admitted: the time until the oldest in-window timestamp falls outside the
// window, or zero when the client is currently under the limit.
func (r *RateLimiter) WaitTime(clientID string) time.Duration {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.pruneLocked(clientID, now)
	if len(history) < r.maxRequests {
		return 0
	}
	wait := history[0].Add(r.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// pruneLocked drops timestamps at or before the window start and stores the
// pruned history back. Caller must hold r.mu.
func (r *RateLimiter) pruneLocked(clientID string, now time.Time) []time.Time {
	windowStart := now.Add(-r.window)
	history := r.clients[clientID]
	keep := 0
	for keep < len(history) && !history[keep].After(windowStart) {
		keep++
	}
	history = history[keep:]
	if len(history) == 0 {
		delete(r.clients, clientID)
	} else {
		r.clients[clientID] = history
	}
	return history
}
