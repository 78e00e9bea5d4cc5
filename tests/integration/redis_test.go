//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/lawchamber/reminderd/internal/redis"
)

func TestDedupe_MarkSent_ClaimsOnce(t *testing.T) {
	client := redisstore.NewClient(testRedisAddr)
	t.Cleanup(func() { client.Close() })
	store := redisstore.NewDedupeStore(client, time.Minute)
	ctx := context.Background()

	window := time.Now().UTC()

	claimed, err := store.MarkSent(ctx, "task-dedupe-1", window)
	require.NoError(t, err)
	assert.True(t, claimed, "first claim succeeds")

	claimed, err = store.MarkSent(ctx, "task-dedupe-1", window)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim for the same window is rejected")

	// The next day's window is a fresh claim.
	claimed, err = store.MarkSent(ctx, "task-dedupe-1", window.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed)

	// Releasing reopens the claim for the same window.
	require.NoError(t, store.Release(ctx, "task-dedupe-1", window))
	claimed, err = store.MarkSent(ctx, "task-dedupe-1", window)
	require.NoError(t, err)
	assert.True(t, claimed, "a released marker can be claimed again")
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	client := redisstore.NewClient(testRedisAddr)
	t.Cleanup(func() { client.Close() })
	limiter := redisstore.NewRateLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "+14155550100")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d under the limit", i+1)
	}

	allowed, err := limiter.Allow(ctx, "+14155550100")
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request in the window is rejected")

	// Another destination has its own counter.
	allowed, err = limiter.Allow(ctx, "+14155550199")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLeaderElector_SingleLeader(t *testing.T) {
	client := redisstore.NewClient(testRedisAddr)
	t.Cleanup(func() {
		client.Del(context.Background(), "reminderd:leader") //nolint:errcheck
		client.Close()
	})
	ctx := context.Background()

	a := redisstore.NewLeaderElector(client, "instance-a", testLogger())
	b := redisstore.NewLeaderElector(client, "instance-b", testLogger())

	assert.True(t, a.AcquireOrRenew(ctx), "first instance wins")
	assert.False(t, b.AcquireOrRenew(ctx), "second instance loses while lease held")
	assert.True(t, a.AcquireOrRenew(ctx), "holder renews its own lease")
}
