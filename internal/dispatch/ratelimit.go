package dispatch

import (
	"context"
	"sync"
	"time"
)

// idleBucketTTL is how long a sender's bucket survives without use.
const idleBucketTTL = 10 * time.Minute

// RateLimiter is a token bucket per sender in front of the classifier call,
// so one chatty contact cannot starve the others.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	max       float64
	rate      float64 // tokens per second
	lastPrune time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 5
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		max:       float64(maxBurst),
		rate:      ratePerMinute / 60.0,
		lastPrune: time.Now(),
	}
}

// Wait blocks until key has a token or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		wait := rl.take(key, time.Now())
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token and returns 0, or returns how long until one is available.
func (rl *RateLimiter) take(key string, now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastPrune) > idleBucketTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastTime) > idleBucketTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastPrune = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.max, lastTime: now}
		rl.buckets[key] = b
	}
	b.tokens = min(rl.max, b.tokens+now.Sub(b.lastTime).Seconds()*rl.rate)
	b.lastTime = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return 0
	}
	return time.Duration((1.0 - b.tokens) / rl.rate * float64(time.Second))
}
