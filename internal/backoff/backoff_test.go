package backoff

import (
	"context"
	"testing"
	"time"
)

func TestDelay_BoundsWithoutJitter(t *testing.T) {
	cfg := Config{Base: 10 * time.Millisecond, Max: 100 * time.Millisecond}

	var prev time.Duration
	for n := 0; n < 10; n++ {
		d := Delay(n, cfg)
		if d <= 0 {
			t.Fatalf("Delay(%d) = %v, want > 0", n, d)
		}
		if d > cfg.Max {
			t.Fatalf("Delay(%d) = %v, want <= %v", n, d, cfg.Max)
		}
		if d < prev {
			t.Fatalf("Delay(%d) = %v, want >= previous %v (monotonic until capped)", n, d, prev)
		}
		prev = d
	}
}

func TestDelay_CapsAtMax(t *testing.T) {
	cfg := Config{Base: time.Second, Max: 5 * time.Second}
	d := Delay(10, cfg)
	if d != cfg.Max {
		t.Errorf("Delay(10) = %v, want capped at %v", d, cfg.Max)
	}
}

func TestDelay_JitterStaysInBounds(t *testing.T) {
	cfg := Config{Base: 10 * time.Millisecond, Max: 100 * time.Millisecond, Jitter: true}
	for n := 0; n < 20; n++ {
		d := Delay(n, cfg)
		if d <= 0 || d > cfg.Max {
			t.Fatalf("Delay(%d) = %v, want in (0, %v]", n, d, cfg.Max)
		}
	}
}

func TestDelay_ZeroConfigUsesDefaults(t *testing.T) {
	d := Delay(0, Config{})
	if d <= 0 {
		t.Fatalf("Delay with zero config = %v, want > 0", d)
	}
}

func TestSleep_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)
	if err == nil {
		t.Fatal("expected Sleep to return an error for a cancelled context")
	}
}

func TestSleep_CompletesAfterDuration(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Sleep returned before the duration elapsed")
	}
}
