package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_ImmediateBurst(t *testing.T) {
	rl := NewRateLimiter(5, 60.0)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(ctx, "a"); err != nil {
			t.Fatalf("burst token %d failed: %v", i, err)
		}
	}
}

func TestRateLimiter_WaitsAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 600.0) // 1 burst, 10/sec refill

	ctx := context.Background()
	if err := rl.Wait(ctx, "a"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx, "a"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected some wait time, got %v", elapsed)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 1.0)
	now := time.Now()
	if d := rl.take("a", now); d != 0 {
		t.Fatalf("a first take should pass, got wait %v", d)
	}
	if d := rl.take("a", now); d == 0 {
		t.Fatal("a second take should wait")
	}
	if d := rl.take("b", now); d != 0 {
		t.Fatalf("b should have its own bucket, got wait %v", d)
	}
}

func TestRateLimiter_PrunesIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1.0)
	now := time.Now()
	rl.take("old", now)
	rl.take("new", now.Add(2*idleBucketTTL))
	if _, ok := rl.buckets["old"]; ok {
		t.Fatal("idle bucket should be pruned")
	}
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	rl := NewRateLimiter(1, 1.0) // 1 burst, very slow refill

	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.Wait(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	cancel()
	if err := rl.Wait(ctx, "a"); err == nil {
		t.Fatal("expected context cancelled error")
	}
}
