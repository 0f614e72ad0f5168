package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFirstErrorWinsAndCancels(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(true))

	boom := errors.New("boom")
	sup.Go("first", func(ctx context.Context) error { return boom })
	sup.Go("second", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait() = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), "first") {
		t.Fatalf("error %q does not name the goroutine", err)
	}

	select {
	case <-sup.Context().Done():
	default:
		t.Fatal("supervisor context not canceled after error")
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(true))

	sup.Go("exploder", func(ctx context.Context) error {
		panic("kaboom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "panic in exploder") {
		t.Fatalf("Wait() = %v, want panic error", err)
	}
}

func TestCleanExitAndContextCancel(t *testing.T) {
	t.Parallel()
	sup := New(context.Background())

	ran := make(chan struct{})
	sup.Go0("worker", func(ctx context.Context) { close(ran) })
	sup.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err() // context.Canceled must not count as a failure
	})

	<-ran
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v, want nil", err)
	}
	if got := sup.Active(); got != 0 {
		t.Fatalf("Active() = %d after Stop, want 0", got)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()
	sup := New(context.Background())

	release := make(chan struct{})
	sup.Go("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := sup.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v, want deadline exceeded", err)
	}
	close(release)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := sup.Wait(ctx2); err != nil {
		t.Fatalf("second Wait() = %v, want nil", err)
	}
}
