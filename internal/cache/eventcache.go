package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// webhookDedupTTL bounds how long a processed event id is remembered. The
// ledger's own idempotency still holds after expiry; the cache just short
// circuits the common retry window.
const webhookDedupTTL = 24 * time.Hour

// EventCache tracks processed webhook event ids in Redis. It fails open:
// when Redis is unavailable every delivery looks fresh, and the downstream
// handlers stay idempotent regardless.
type EventCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewEventCache(rdb *redis.Client, logger *zap.Logger) *EventCache {
	return &EventCache{rdb: rdb, logger: logger}
}

func key(eventID string) string {
	return "payment:webhook:" + eventID
}

func (c *EventCache) Seen(ctx context.Context, eventID string) bool {
	n, err := c.rdb.Exists(ctx, key(eventID)).Result()
	if err != nil {
		c.logger.Warn("webhook dedup cache unavailable", zap.Error(err))
		return false
	}
	return n > 0
}

func (c *EventCache) MarkSeen(ctx context.Context, eventID string) {
	if err := c.rdb.Set(ctx, key(eventID), 1, webhookDedupTTL).Err(); err != nil {
		c.logger.Warn("failed to record processed webhook event", zap.Error(err))
	}
}
