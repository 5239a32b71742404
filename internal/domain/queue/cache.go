package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SnapshotCache caches the active-queues overview between mutations. The
// cache is strictly best-effort: a miss or a backend error just falls
// through to the database.
type SnapshotCache interface {
	GetActive(ctx context.Context) ([]ActiveQueue, bool)
	SetActive(ctx context.Context, queues []ActiveQueue)
	Invalidate(ctx context.Context)
}

const (
	activeQueuesKey = "queues:active"
	activeQueuesTTL = 5 * time.Second
)

type redisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisCache returns a SnapshotCache backed by Redis. The short TTL keeps
// display boards fresh even if an invalidation is lost.
func NewRedisCache(client *redis.Client, logger zerolog.Logger) SnapshotCache {
	return &redisCache{client: client, logger: logger}
}

func (c *redisCache) GetActive(ctx context.Context) ([]ActiveQueue, bool) {
	raw, err := c.client.Get(ctx, activeQueuesKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("queue cache read failed")
		}
		return nil, false
	}
	var out []ActiveQueue
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn().Err(err).Msg("queue cache payload corrupt")
		return nil, false
	}
	return out, true
}

func (c *redisCache) SetActive(ctx context.Context, queues []ActiveQueue) {
	raw, err := json.Marshal(queues)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, activeQueuesKey, raw, activeQueuesTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("queue cache write failed")
	}
}

func (c *redisCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, activeQueuesKey).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("queue cache invalidation failed")
	}
}
