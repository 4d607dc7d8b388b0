// Package ratelimit implements a Redis-backed fixed-window rate limiter
// shared across all processes serving the API.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is a named quota: points per window, with an optional block applied
// once the window is exhausted.
type Policy struct {
	Name   string
	Points int
	Window time.Duration
	// Block, when positive, rejects the key for this long after exhaustion
	// regardless of the window resetting.
	Block   time.Duration
	Message string
}

// Result reports the state of a key after a successful consumption.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// ExhaustedError signals that the key is over quota. Any other error from
// Consume is an infrastructure failure, never a rate-limit decision.
type ExhaustedError struct {
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limit exhausted, retry after %s", e.RetryAfter)
}

type Limiter struct {
	client *redis.Client
	prefix string
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client, prefix: "ratelimit:"}
}

// Consume takes one point for the key under the policy. Counting is a plain
// INCR so concurrent requests across processes never double-spend a point.
func (l *Limiter) Consume(ctx context.Context, policy Policy, clientIP string) (Result, error) {
	key := l.prefix + policy.Name + ":" + clientIP

	if policy.Block > 0 {
		blocked, retryAfter, err := l.blockRemaining(ctx, key)
		if err != nil {
			return Result{}, err
		}
		if blocked {
			return Result{}, &ExhaustedError{
				Limit:      policy.Points,
				RetryAfter: retryAfter,
				ResetAt:    time.Now().UTC().Add(retryAfter),
			}
		}
	}

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, policy.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit ttl: %w", err)
	}
	if ttl <= 0 {
		ttl = policy.Window
	}

	if int(count) > policy.Points {
		retryAfter := ttl
		if policy.Block > 0 {
			if err := l.client.Set(ctx, l.blockKey(key), 1, policy.Block).Err(); err != nil {
				return Result{}, fmt.Errorf("rate limit block: %w", err)
			}
			retryAfter = policy.Block
		}

		return Result{}, &ExhaustedError{
			Limit:      policy.Points,
			RetryAfter: retryAfter,
			ResetAt:    time.Now().UTC().Add(retryAfter),
		}
	}

	return Result{
		Limit:     policy.Points,
		Remaining: policy.Points - int(count),
		ResetAt:   time.Now().UTC().Add(ttl),
	}, nil
}

func (l *Limiter) blockRemaining(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, l.blockKey(key)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit block ttl: %w", err)
	}
	if ttl > 0 {
		return true, ttl, nil
	}

	return false, 0, nil
}

func (l *Limiter) blockKey(key string) string {
	return l.prefix + "block:" + key[len(l.prefix):]
}
