package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper answers whether an envelope id has already been fully processed.
// Delivery is at-least-once, so this is an optimization against duplicate
// side effects, not a correctness requirement; handlers stay re-runnable.
//
// Seen must only report ids recorded by Mark, and callers must Mark only
// after the envelope reached a terminal settle (acknowledged or dead).
// Retry copies share the original id, so marking any earlier would swallow
// scheduled redeliveries.
type Deduper interface {
	// Seen reports whether id was already marked as processed.
	Seen(ctx context.Context, id string) (bool, error)
	// Mark records id as processed.
	Mark(ctx context.Context, id string) error
}

const keyPrefix = "traveltasks:seen:"

// Redis dedups envelope ids with a TTL'd seen-set. A Redis outage degrades
// to processing the duplicate, never to dropping work.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr string, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (r *Redis) Seen(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: exists %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *Redis) Mark(ctx context.Context, id string) error {
	if err := r.client.SetNX(ctx, keyPrefix+id, 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("dedup: mark %s: %w", id, err)
	}
	return nil
}

// Ping verifies the Redis connection at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// None disables dedup; every delivery is handled.
type None struct{}

func (None) Seen(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (None) Mark(ctx context.Context, id string) error {
	return nil
}
