package hubbot

import (
	"sync"
	"time"

	"mellium.im/xmpp/jid"
)

// RateLimiter counts command invocations per sender inside a fixed
// window. The map is shared by every listener holding the limiter, so it
// is mutex-guarded; dispatch may run from more than one room consumer.
type RateLimiter struct {
	// Warning is sent back to a sender whose budget is exhausted.
	Warning string

	max    int
	window time.Duration

	mu     sync.Mutex
	counts map[string]*limiterEntry

	now func() time.Time
}

type limiterEntry struct {
	count int
	since time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		Warning: "You are doing that too often, slow down.",
		max:     max,
		window:  window,
		counts:  make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// Allow counts one invocation for from and reports whether it is still
// within budget. Budgets reset when the sender's window expires.
func (rl *RateLimiter) Allow(from jid.JID) bool {
	key := from.Bare().String()
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.counts[key]
	if !ok || now.Sub(entry.since) >= rl.window {
		entry = &limiterEntry{since: now}
		rl.counts[key] = entry
	}
	entry.count++
	return entry.count <= rl.max
}
