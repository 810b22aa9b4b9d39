// internal/forum/cache.go
package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"application-sync/internal/common/database"
	"application-sync/internal/common/logger"
	"application-sync/internal/models"
)

// CachedForum wraps a Forum with a short-lived Redis cache for topic reads.
// Writes invalidate the cached entry so the next read goes to the forum.
type CachedForum struct {
	inner Forum
	redis *database.RedisClient
	ttl   time.Duration
	log   logger.Logger
}

// NewCachedForum wraps inner with a Redis topic cache with the given TTL.
func NewCachedForum(inner Forum, redis *database.RedisClient, ttl time.Duration, log logger.Logger) *CachedForum {
	return &CachedForum{inner: inner, redis: redis, ttl: ttl, log: log}
}

func topicKey(topicID int64) string {
	return fmt.Sprintf("forum:topic:%d", topicID)
}

func (c *CachedForum) FetchTopic(ctx context.Context, topicID int64) (*models.Topic, error) {
	if raw, err := c.redis.Get(ctx, topicKey(topicID)); err == nil {
		var topic models.Topic
		if err := json.Unmarshal([]byte(raw), &topic); err == nil {
			return &topic, nil
		}
		// corrupt entry, fall through to the forum
	}

	topic, err := c.inner.FetchTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(topic); err == nil {
		if err := c.redis.Set(ctx, topicKey(topicID), string(raw), c.ttl); err != nil {
			c.log.Warn("Topic cache write failed", map[string]interface{}{
				"topic_id": topicID,
				"error":    err.Error(),
			})
		}
	}
	return topic, nil
}

func (c *CachedForum) SetTags(ctx context.Context, topicID int64, tags []string) error {
	if err := c.inner.SetTags(ctx, topicID, tags); err != nil {
		return err
	}
	if err := c.redis.Del(ctx, topicKey(topicID)); err != nil {
		c.log.Warn("Topic cache invalidation failed", map[string]interface{}{
			"topic_id": topicID,
			"error":    err.Error(),
		})
	}
	return nil
}

// Invalidate drops the cached entry for a topic, used when an inbound event
// proves the cache stale.
func (c *CachedForum) Invalidate(ctx context.Context, topicID int64) {
	if err := c.redis.Del(ctx, topicKey(topicID)); err != nil {
		c.log.Warn("Topic cache invalidation failed", map[string]interface{}{
			"topic_id": topicID,
			"error":    err.Error(),
		})
	}
}
