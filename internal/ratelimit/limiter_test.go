package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounts-api/internal/ratelimit"
)

func newTestLimiter(t *testing.T) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return ratelimit.NewLimiter(client), mr
}

var authPolicy = ratelimit.Policy{
	Name:   "auth",
	Points: 10,
	Window: 15 * time.Minute,
	Block:  10 * time.Minute,
}

var generalPolicy = ratelimit.Policy{
	Name:   "general",
	Points: 300,
	Window: 5 * time.Minute,
}

func TestConsumeCountsDownAndBlocks(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		result, err := limiter.Consume(ctx, authPolicy, "203.0.113.7")
		require.NoError(t, err, "consumption %d is inside the quota", i)
		assert.Equal(t, 10, result.Limit)
		assert.Equal(t, 10-i, result.Remaining)
		assert.False(t, result.ResetAt.IsZero())
	}

	_, err := limiter.Consume(ctx, authPolicy, "203.0.113.7")
	var exhausted *ratelimit.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.InDelta(t, 600, exhausted.RetryAfter.Seconds(), 2, "block duration governs the retry delay")

	// A different address has its own counter.
	result, err := limiter.Consume(ctx, authPolicy, "198.51.100.9")
	require.NoError(t, err)
	assert.Equal(t, 9, result.Remaining)
}

func TestBlockOutlivesWindowReset(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	policy := ratelimit.Policy{Name: "auth", Points: 2, Window: time.Minute, Block: 10 * time.Minute}

	for i := 0; i < 3; i++ {
		_, _ = limiter.Consume(ctx, policy, "203.0.113.7")
	}

	// The counting window expires well before the block does.
	mr.FastForward(2 * time.Minute)

	_, err := limiter.Consume(ctx, policy, "203.0.113.7")
	var exhausted *ratelimit.ExhaustedError
	require.ErrorAs(t, err, &exhausted, "the block must hold even after the window reset")
	assert.LessOrEqual(t, exhausted.RetryAfter, 8*time.Minute)
}

func TestBlockEventuallyLifts(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	policy := ratelimit.Policy{Name: "auth", Points: 2, Window: time.Minute, Block: 10 * time.Minute}

	for i := 0; i < 3; i++ {
		_, _ = limiter.Consume(ctx, policy, "203.0.113.7")
	}

	mr.FastForward(11 * time.Minute)

	result, err := limiter.Consume(ctx, policy, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Remaining)
}

func TestNonBlockingPolicyRecoversAtWindowReset(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	policy := ratelimit.Policy{Name: "general", Points: 2, Window: time.Minute}

	_, err := limiter.Consume(ctx, policy, "203.0.113.7")
	require.NoError(t, err)
	_, err = limiter.Consume(ctx, policy, "203.0.113.7")
	require.NoError(t, err)

	_, err = limiter.Consume(ctx, policy, "203.0.113.7")
	var exhausted *ratelimit.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.LessOrEqual(t, exhausted.RetryAfter, time.Minute)

	mr.FastForward(time.Minute + time.Second)

	result, err := limiter.Consume(ctx, policy, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Remaining)
}

func TestPoliciesDoNotShareCounters(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, _ = limiter.Consume(ctx, authPolicy, "203.0.113.7")
	}

	result, err := limiter.Consume(ctx, generalPolicy, "203.0.113.7")
	require.NoError(t, err, "exhausting the auth policy must not touch the general one")
	assert.Equal(t, 299, result.Remaining)
}

func TestStoreFailureIsNotARateLimitDecision(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	_, err := limiter.Consume(context.Background(), authPolicy, "203.0.113.7")
	require.Error(t, err)

	var exhausted *ratelimit.ExhaustedError
	assert.False(t, errors.As(err, &exhausted), "an unreachable store must surface as an infrastructure error")
}
