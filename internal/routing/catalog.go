// Package routing selects the destination work-queue for a conversation.
package routing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
)

// Catalog provides the queue list the router scores against.
type Catalog interface {
	Load(ctx context.Context) ([]domain.Queue, error)
	// Invalidate drops the cached catalog; called on queue mutation.
	Invalidate(ctx context.Context) error
}

const catalogCacheKey = "orchestrator:queues:catalog"

// RedisCatalog caches the active queue catalog in Redis with a TTL. Reads are
// eventually consistent within the TTL; explicit invalidation tightens that
// on queue mutation.
type RedisCatalog struct {
	queues repository.QueueRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCatalog builds the cached catalog.
func NewRedisCatalog(queues repository.QueueRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCatalog{queues: queues, client: client, ttl: ttl, logger: logger}
}

// Load returns the cached catalog, refreshing from the repository on miss.
// Cache failures degrade to a direct repository read.
func (c *RedisCatalog) Load(ctx context.Context) ([]domain.Queue, error) {
	if c.client != nil {
		cached, err := c.client.Get(ctx, catalogCacheKey).Bytes()
		if err == nil {
			var catalog []domain.Queue
			if jsonErr := json.Unmarshal(cached, &catalog); jsonErr == nil {
				return catalog, nil
			}
			c.logger.Warn("discarding undecodable queue catalog cache entry")
		} else if err != redis.Nil {
			c.logger.Warn("queue catalog cache read failed", zap.Error(err))
		}
	}

	catalog, err := c.queues.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		encoded, err := json.Marshal(catalog)
		if err == nil {
			if err := c.client.Set(ctx, catalogCacheKey, encoded, c.ttl).Err(); err != nil {
				c.logger.Warn("queue catalog cache write failed", zap.Error(err))
			}
		}
	}
	return catalog, nil
}

// Invalidate drops the cache entry.
func (c *RedisCatalog) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, catalogCacheKey).Err()
}
