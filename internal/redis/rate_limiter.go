package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps how many ad hoc messages may go to one destination per
// window, so a misbehaving caller cannot spam a client's WhatsApp.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
}

type fixedWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter returns a Redis-backed fixed-window rate limiter allowing
// limit events per window for a given key. A non-positive window falls
// back to one minute; zero would divide the window counter by zero.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &fixedWindowLimiter{client: client, limit: limit, window: window}
}

func (r *fixedWindowLimiter) Limit() int { return r.limit }

// Allow increments the counter for the current window and reports whether
// the caller is still under the limit. The counter key carries the window
// number, so old windows expire on their own.
func (r *fixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowNum := time.Now().UnixNano() / r.window.Nanoseconds()
	rkey := fmt.Sprintf("ratelimit:%s:%d", key, windowNum)

	pipe := r.client.TxPipeline()
	countCmd := pipe.Incr(ctx, rkey)
	pipe.Expire(ctx, rkey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter pipeline for %q: %w", key, err)
	}

	return countCmd.Val() <= int64(r.limit), nil
}
