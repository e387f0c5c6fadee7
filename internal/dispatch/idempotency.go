package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotency keys dispatches on event id so a producer retrying a
// request cannot deliver the same notification twice within the TTL. Ids
// are marked only after a terminal outcome, so an event parked on the
// retry queue replays cleanly.
type RedisIdempotency struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

func idempotencyKey(eventID string) string {
	return fmt.Sprintf("notify:idempotency:%s", eventID)
}

func (r *RedisIdempotency) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := r.client.Exists(ctx, idempotencyKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisIdempotency) Mark(ctx context.Context, eventID string) error {
	return r.client.Set(ctx, idempotencyKey(eventID), "processed", r.ttl).Err()
}
