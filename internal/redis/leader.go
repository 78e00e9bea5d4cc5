package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	leaderKey = "reminderd:leader"
	leaderTTL = 30 * time.Second
)

// LeaderElector decides whether this instance may fire scheduled runs.
// With multiple reminderd replicas only the leader dispatches, so a scaled
// deployment never double-sends the same window.
type LeaderElector interface {
	AcquireOrRenew(ctx context.Context) bool
}

type leaderElector struct {
	client     *redis.Client
	instanceID string
	logger     *slog.Logger
}

// NewLeaderElector returns a Redis-backed LeaderElector identified by
// instanceID.
func NewLeaderElector(client *redis.Client, instanceID string, logger *slog.Logger) LeaderElector {
	return &leaderElector{client: client, instanceID: instanceID, logger: logger}
}

// AcquireOrRenew attempts SETNX; returns true if this instance is the leader.
func (l *leaderElector) AcquireOrRenew(ctx context.Context) bool {
	ok, err := l.client.SetNX(ctx, leaderKey, l.instanceID, leaderTTL).Result()
	if err != nil {
		l.logger.Error("leader election SetNX", slog.String("error", err.Error()))
		return false
	}
	if ok {
		l.logger.Info("acquired dispatch leadership", slog.String("instance_id", l.instanceID))
		return true
	}

	// Key already held. Renew only if we own it; the Lua script keeps the
	// ownership check and the expiry bump atomic.
	renewScript := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	result, err := renewScript.Run(
		ctx, l.client,
		[]string{leaderKey},
		l.instanceID,
		leaderTTL.Milliseconds(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Error("leader renewal", slog.String("error", err.Error()))
		return false
	}
	return result == 1
}
