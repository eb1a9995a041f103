package crawler

import (
	"context"
	"time"
)

// Gate is a process-wide counting gate bounding simultaneous detail
// fetches. All categories share one gate since they share the same
// upstream-abuse risk. A small fixed sleep runs after each acquisition to
// smooth burstiness without serializing the batch.
type Gate struct {
	slots chan struct{}
	delay time.Duration
}

// NewGate builds a gate of the given width. Width values below one are
// clamped to one.
func NewGate(width int, delay time.Duration) *Gate {
	if width < 1 {
		width = 1
	}
	return &Gate{
		slots: make(chan struct{}, width),
		delay: delay,
	}
}

// Acquire blocks until a slot is free or the context is cancelled, then
// applies the pacing delay.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			g.Release()
			return ctx.Err()
		}
	}
	return nil
}

// Release frees a slot. Safe to call from a defer even after failed fetches.
func (g *Gate) Release() {
	<-g.slots
}
