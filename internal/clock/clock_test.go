package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFake_SleepAdvances(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)

	if err := f.Sleep(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	f.Advance(500 * time.Millisecond)

	if got, want := f.Now(), start.Add(2500*time.Millisecond); !got.Equal(want) {
		t.Errorf("Now = %v, want %v", got, want)
	}
	if got := f.Sleeps(); len(got) != 1 || got[0] != 2*time.Second {
		t.Errorf("Sleeps = %v, want [2s]", got)
	}
}

func TestFake_SleepCancelled(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(f.Sleeps()) != 0 {
		t.Error("cancelled sleep must not be recorded")
	}
}

func TestReal_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Real{}.Sleep(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Sleep did not return promptly on context expiry")
	}
}
