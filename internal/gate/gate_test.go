package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Poller/internal/domain"
)

func TestGate_AvailableTracksPermits(t *testing.T) {
	g := New(3)
	if g.Available() != 3 || g.Max() != 3 {
		t.Fatalf("expected 3/3, got %d/%d", g.Available(), g.Max())
	}

	ctx := context.Background()
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !g.TryAcquire() {
		t.Fatal("TryAcquire should succeed")
	}
	if g.Available() != 1 {
		t.Errorf("expected 1 available, got %d", g.Available())
	}

	g.Release()
	g.Release()
	if g.Available() != 3 {
		t.Errorf("expected 3 available after release, got %d", g.Available())
	}
}

func TestGate_NegativeMaxIsZero(t *testing.T) {
	g := New(-5)
	if g.Max() != 0 || g.HasCapacity() {
		t.Errorf("expected empty gate, got max=%d", g.Max())
	}
	if g.TryAcquire() {
		t.Error("TryAcquire must fail on empty gate")
	}
}

func TestGate_AcquireInterrupted(t *testing.T) {
	g := New(1)
	if !g.TryAcquire() {
		t.Fatal("TryAcquire should succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx)
	if !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped DeadlineExceeded, got %v", err)
	}

	// Net effect of the interrupted wait is zero
	g.Release()
	if g.Available() != 1 {
		t.Errorf("expected 1 available, got %d", g.Available())
	}
}

func TestGate_AcquireOnCancelledContext(t *testing.T) {
	g := New(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Acquire(ctx); !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if g.Available() != 5 {
		t.Errorf("expected 5 available, got %d", g.Available())
	}
}

func TestGate_DoReleasesOnErrorAndPanic(t *testing.T) {
	g := New(1)
	ctx := context.Background()

	want := errors.New("boom")
	if err := g.Do(ctx, func() error { return want }); !errors.Is(err, want) {
		t.Errorf("expected boom, got %v", err)
	}
	if g.Available() != 1 {
		t.Errorf("permit leaked after error: available=%d", g.Available())
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic must propagate")
			}
		}()
		_ = g.Do(ctx, func() error { panic("p") })
	}()
	if g.Available() != 1 {
		t.Errorf("permit leaked after panic: available=%d", g.Available())
	}
}

func TestGate_BoundsConcurrency(t *testing.T) {
	const max = 4
	g := New(max)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), func() error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				current.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak.Load() > max {
		t.Errorf("peak concurrency %d exceeds %d", peak.Load(), max)
	}
	if g.Available() != max {
		t.Errorf("expected all permits back, got %d", g.Available())
	}
}
