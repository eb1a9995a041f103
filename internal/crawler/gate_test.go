package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateBoundsConcurrency(t *testing.T) {
	gate := NewGate(3, 0)
	ctx := context.Background()

	var current, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gate.Acquire(ctx); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer gate.Release()

			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > 3 {
		t.Fatalf("expected at most 3 concurrent holders, saw %d", got)
	}
}

func TestGateAcquireHonorsCancellation(t *testing.T) {
	gate := NewGate(1, 0)
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gate.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	gate.Release()
}

func TestGateReleasesSlotWhenCancelledDuringDelay(t *testing.T) {
	gate := NewGate(1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := gate.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The slot must be free again for the next caller.
	gate.delay = 0
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer probeCancel()
	if err := gate.Acquire(probeCtx); err != nil {
		t.Fatalf("slot not released after cancelled delay: %v", err)
	}
	gate.Release()
}
