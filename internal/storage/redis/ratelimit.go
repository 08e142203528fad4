package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ratelimit:"

// RateLimiter is a fixed-window counter shared by every service instance.
// Exceeding the limit sets a block key that lives for blockTime.
type RateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	limit     int64
	interval  time.Duration
	blockTime time.Duration
}

func NewRateLimiter(client redis.UniversalClient, limit int, interval, blockTime time.Duration) *RateLimiter {
	return &RateLimiter{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		limit:     int64(limit),
		interval:  interval,
		blockTime: blockTime,
	}
}

func (rl *RateLimiter) TryAcquire(ctx context.Context, key string) (bool, error) {
	blockKey := rl.keyPrefix + "block:" + key
	counterKey := rl.keyPrefix + "count:" + key

	blocked, err := rl.client.Exists(ctx, blockKey).Result()
	if err != nil {
		return false, fmt.Errorf("check block key: %w", err)
	}
	if blocked > 0 {
		return false, nil
	}

	count, err := rl.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("increment counter: %w", err)
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, counterKey, rl.interval).Err(); err != nil {
			return false, fmt.Errorf("expire counter: %w", err)
		}
	}

	if count > rl.limit {
		if err := rl.client.Set(ctx, blockKey, "1", rl.blockTime).Err(); err != nil {
			return false, fmt.Errorf("set block key: %w", err)
		}
		return false, nil
	}
	return true, nil
}
