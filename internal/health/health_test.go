package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestReadyAllHealthy(t *testing.T) {
	runner := NewProbeRunner(time.Second, 0,
		NewCheck("vault", func(context.Context) error { return nil }),
		NewCheck("upstream", func(context.Context) error { return nil }),
	)

	ok, results := runner.Ready(context.Background())
	if !ok {
		t.Fatal("expected ready")
	}
	if len(results) != 2 || results[0].Name != "vault" || !results[1].Healthy {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestReadyReportsFailingChecker(t *testing.T) {
	runner := NewProbeRunner(time.Second, 0,
		NewCheck("vault", func(context.Context) error { return errors.New("connection refused") }),
	)

	ok, results := runner.Ready(context.Background())
	if ok {
		t.Fatal("expected not ready")
	}
	if len(results) != 1 || results[0].Healthy || results[0].Error != "connection refused" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestReadyCachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	runner := NewProbeRunner(time.Second, time.Minute,
		NewCheck("vault", func(context.Context) error {
			calls.Add(1)
			return nil
		}),
	)

	runner.Ready(context.Background())
	runner.Ready(context.Background())
	if got := calls.Load(); got != 1 {
		t.Fatalf("checker ran %d times, want 1", got)
	}
}

func TestReadyCheckerSeesTimeout(t *testing.T) {
	runner := NewProbeRunner(10*time.Millisecond, 0,
		NewCheck("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	ok, results := runner.Ready(context.Background())
	if ok {
		t.Fatal("expected not ready")
	}
	if results[0].Error == "" {
		t.Fatalf("expected timeout error, got %+v", results[0])
	}
}
