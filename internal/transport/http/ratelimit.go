package http

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// rateLimiter counts inbound frames per fixed one-minute window.
// It is used by a single read loop and is not safe for concurrent use.
type rateLimiter struct {
	limit       int
	counter     int
	clock       clockwork.Clock
	windowStart time.Time
}

func newRateLimiter(limit int, clock clockwork.Clock) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{
		limit:       limit,
		clock:       clock,
		windowStart: clock.Now(),
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	if now := r.clock.Now(); now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
