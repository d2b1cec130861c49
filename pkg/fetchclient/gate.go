package fetchclient

import (
	"context"
	"sync"
	"time"
)

// Gate serializes the request rate across all callers: every Wait returns
// at least `interval` after the previous one did, regardless of how many
// goroutines fetch concurrently.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewGate builds a rate gate with the given minimum inter-request interval.
// A zero or negative interval disables throttling.
func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// Wait blocks until the configured interval has elapsed since the previous
// Wait returned, or the context is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil || g.interval <= 0 {
		return ctx.Err()
	}

	g.mu.Lock()
	now := time.Now()
	next := g.last.Add(g.interval)
	if next.Before(now) {
		next = now
	}
	g.last = next
	g.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
