package stores

import (
	"sync"
	"time"
)

// RefreshGate is the in-flight refresh registry. One entry per
// (user, address) key, inserted with a timestamp and treated as expired once
// the grace period elapses regardless of refresh outcome, so a crashed
// refresh can never permanently block its user.
//
// The gate serializes by rejection, not by blocking: a second acquire inside
// the grace period fails immediately and the caller retries later.
type RefreshGate struct {
	mu       sync.Mutex
	inflight map[string]time.Time
}

func NewRefreshGate() *RefreshGate {
	return &RefreshGate{
		inflight: make(map[string]time.Time),
	}
}

// TryAcquire claims the key. It fails while a live entry exists and
// overwrites expired entries in place.
func (g *RefreshGate) TryAcquire(key string, now time.Time, grace time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if at, ok := g.inflight[key]; ok && now.Sub(at) < grace {
		return false
	}
	g.inflight[key] = now
	return true
}

// Sweep drops entries older than the grace period and returns how many were
// removed. Runs concurrently with acquires; no global pause.
func (g *RefreshGate) Sweep(now time.Time, grace time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, at := range g.inflight {
		if now.Sub(at) >= grace {
			delete(g.inflight, key)
			removed++
		}
	}
	return removed
}

// Len reports live plus not-yet-swept entries.
func (g *RefreshGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
