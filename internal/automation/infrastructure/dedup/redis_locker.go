// Package dedup suppresses duplicate rule firings across worker instances.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements firing deduplication with SET NX. The first
// worker to claim a firing key wins; the key expires on its own so a
// crashed worker never wedges a rule.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a locker on the given client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "callout:"}
}

// Acquire claims the key for ttl. Returns false when another worker
// already holds it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, 1, ttl).Result()
}
