package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper maps idempotency keys to the task ids they produced, shared
// across instances so a retried create lands on whichever replica and still
// resolves to the original task.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("idem:%s:%s", userID, key)
}

// Register records key -> taskID if the key is unseen and returns the task id
// that owns the key. added is false on a replay, in which case the returned id
// is the one recorded by the first request.
func (r *RedisDeduper) Register(ctx context.Context, userID, key, taskID string) (string, bool, error) {
	k := r.key(userID, key)
	// The Get can race key expiry, so take one more lap before giving up.
	for attempt := 0; attempt < 2; attempt++ {
		added, err := r.client.SetNX(ctx, k, taskID, r.ttl).Result()
		if err != nil {
			return "", false, err
		}
		if added {
			return taskID, true, nil
		}
		existing, err := r.client.Get(ctx, k).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return "", false, err
		}
		return existing, false, nil
	}
	return taskID, true, nil
}

// Remove deletes a previously registered key. It is used when the create
// fails downstream so the client may retry with the same key.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

var _ Deduper = (*RedisDeduper)(nil)
