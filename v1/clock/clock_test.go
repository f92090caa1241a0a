package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRealSleepSleepsAtLeastDuration(t *testing.T) {
	start := time.Now()
	if err := (Real{}).Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Fatalf("sleep duration too short: %v", elapsed)
	}
}

func TestRealSleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := (Real{}).Sleep(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep did not respect context")
	}
}

func TestFakeSleepAdvancesAndRecords(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFake(start)
	ctx := context.Background()
	_ = f.Sleep(ctx, 40*time.Millisecond)
	_ = f.Sleep(ctx, 30*time.Millisecond)
	f.Advance(time.Second)
	if got := f.Now().Sub(start); got != time.Second+70*time.Millisecond {
		t.Fatalf("unexpected elapsed %v", got)
	}
	sleeps := f.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 40*time.Millisecond || sleeps[1] != 30*time.Millisecond {
		t.Fatalf("unexpected sleeps %v", sleeps)
	}
}

func TestFakeSleepCancelled(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if len(f.Sleeps()) != 0 {
		t.Fatal("cancelled sleep must not be recorded")
	}
}
