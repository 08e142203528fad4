package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterCleanupInterval = 5 * time.Minute

type limiterEntry struct {
	limiter      *rate.Limiter
	blockedUntil time.Time
}

// RateLimiter is a per-key token bucket limiter. A key that exhausts its bucket
// is blocked for blockTime. Idle keys are evicted periodically.
type RateLimiter struct {
	mu          sync.Mutex
	entries     map[string]*limiterEntry
	rate        rate.Limit
	burst       int
	blockTime   time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

func NewRateLimiter(limit int, interval, blockTime time.Duration) *RateLimiter {
	return &RateLimiter{
		entries:     make(map[string]*limiterEntry),
		rate:        rate.Limit(float64(limit) / interval.Seconds()),
		burst:       limit,
		blockTime:   blockTime,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *RateLimiter) TryAcquire(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.maybeCleanup(now)

	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.entries[key] = e
	}

	if now.Before(e.blockedUntil) {
		return false, nil
	}

	if !e.limiter.AllowN(now, 1) {
		e.blockedUntil = now.Add(rl.blockTime)
		return false, nil
	}
	return true, nil
}

// maybeCleanup drops limiters whose bucket is full again and that are not blocked.
func (rl *RateLimiter) maybeCleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < limiterCleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, e := range rl.entries {
		if now.After(e.blockedUntil) && e.limiter.TokensAt(now) >= float64(rl.burst) {
			delete(rl.entries, key)
		}
	}
}
