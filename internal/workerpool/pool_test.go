package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitAndShutdown(t *testing.T) {
	p := New(2, 2)
	var count atomic.Int32

	for i := 0; i < 10; i++ {
		if err := p.Submit(context.Background(), func() error {
			count.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := count.Load(); got != 10 {
		t.Fatalf("count = %d, want 10", got)
	}
}

func TestShutdownJoinsTaskErrors(t *testing.T) {
	p := New(2, 4)
	errA := errors.New("upload a failed")
	errB := errors.New("upload b failed")

	_ = p.Submit(context.Background(), func() error { return errA })
	_ = p.Submit(context.Background(), func() error { return nil })
	_ = p.Submit(context.Background(), func() error { return errB })

	err := p.Shutdown(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Shutdown error = %v, want both task errors", err)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(1, 1)
	_ = p.Shutdown(context.Background())

	if err := p.Submit(context.Background(), func() error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Shutdown = %v, want ErrClosed", err)
	}
	// Shutdown is idempotent.
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestSubmitWaitsForContext(t *testing.T) {
	p := New(1, 1)
	blocker := make(chan struct{})
	started := make(chan struct{})
	_ = p.Submit(context.Background(), func() error {
		close(started)
		<-blocker
		return nil
	})
	<-started
	_ = p.Submit(context.Background(), func() error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, func() error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit on full queue = %v, want deadline exceeded", err)
	}

	close(blocker)
	_ = p.Shutdown(context.Background())
}

func TestPanicBecomesError(t *testing.T) {
	p := New(1, 1)
	_ = p.Submit(context.Background(), func() error { panic("boom") })

	if err := p.Shutdown(context.Background()); err == nil {
		t.Fatal("expected the panic to be reported as an error")
	}
}

func TestShutdownTimeout(t *testing.T) {
	p := New(1, 1)
	blocker := make(chan struct{})
	defer close(blocker)
	_ = p.Submit(context.Background(), func() error {
		<-blocker
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown = %v, want deadline exceeded", err)
	}
}
