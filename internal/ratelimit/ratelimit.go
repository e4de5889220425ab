// Package ratelimit implements a Redis sliding-window rate limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Limiter implements sliding window rate limiting using Redis
type Limiter struct {
	redis  *cache.Redis
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// New creates a limiter allowing limit requests per window for each key
func New(redis *cache.Redis, prefix string, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		redis:  redis,
		limit:  limit,
		window: window,
		prefix: prefix,
		now:    time.Now,
	}
}

func (l *Limiter) key(id string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.prefix, id)
}

// Allow records a request for id and reports whether it fits in the window.
// Redis errors fail open.
func (l *Limiter) Allow(ctx context.Context, id string) (*Result, error) {
	now := l.now()
	windowStart := now.Add(-l.window)
	key := l.key(id)

	// Score = timestamp, Member = unique request id
	pipe := l.redis.Client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to check rate limit")
		return &Result{
			Allowed:   true,
			Remaining: int64(l.limit),
			Limit:     l.limit,
		}, nil
	}

	currentCount := countCmd.Val()
	result := &Result{
		Limit:   l.limit,
		ResetAt: now.Add(l.window),
	}

	if currentCount >= int64(l.limit) {
		result.Allowed = false
		result.Remaining = 0

		// Retry once the oldest entry leaves the window
		oldest, err := l.redis.Client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestTime := time.Unix(0, int64(oldest[0].Score))
			result.RetryAfter = oldestTime.Add(l.window).Sub(now)
			if result.RetryAfter < time.Second {
				result.RetryAfter = time.Second
			}
		} else {
			result.RetryAfter = l.window
		}
		return result, nil
	}

	member := fmt.Sprintf("%d-%s", now.UnixNano(), id)
	if err := l.redis.Client.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	}).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to add rate limit entry")
	}
	l.redis.Client.Expire(ctx, key, l.window*2)

	result.Allowed = true
	result.Remaining = int64(l.limit) - currentCount - 1
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result, nil
}
