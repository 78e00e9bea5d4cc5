package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupeStore records which (task, window) pairs have already been sent so
// a duplicated trigger or restart mid-run cannot double-send. Without it
// delivery is at-least-once within the window.
type DedupeStore interface {
	// MarkSent atomically claims the task for windowStart's UTC date.
	// Returns true when this caller made the claim, false when a marker
	// already existed (somebody sent this reminder before us).
	MarkSent(ctx context.Context, taskID string, windowStart time.Time) (bool, error)

	// Release drops a claim made by MarkSent. Called when the send behind
	// the claim failed, so the next run retries instead of skipping a
	// reminder that was never delivered.
	Release(ctx context.Context, taskID string, windowStart time.Time) error
}

type dedupeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupeStore creates a Redis-backed DedupeStore. Markers expire after
// ttl, which should comfortably exceed the dispatch horizon.
func NewDedupeStore(client *redis.Client, ttl time.Duration) DedupeStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &dedupeStore{client: client, ttl: ttl}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// dedupeKey buckets markers by the window's UTC date. Runs fired at
// different instants on the same day (a retried trigger, a restart mid-run)
// still share a marker; the daily schedule makes the date the natural
// dedupe unit.
func dedupeKey(taskID string, windowStart time.Time) string {
	return fmt.Sprintf("reminder:sent:%s:%s", taskID, windowStart.UTC().Format("2006-01-02"))
}

func (s *dedupeStore) MarkSent(ctx context.Context, taskID string, windowStart time.Time) (bool, error) {
	claimed, err := s.client.SetNX(ctx, dedupeKey(taskID, windowStart), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedupe mark for %s: %w", taskID, err)
	}
	return claimed, nil
}

func (s *dedupeStore) Release(ctx context.Context, taskID string, windowStart time.Time) error {
	if err := s.client.Del(ctx, dedupeKey(taskID, windowStart)).Err(); err != nil {
		return fmt.Errorf("redis dedupe release for %s: %w", taskID, err)
	}
	return nil
}
