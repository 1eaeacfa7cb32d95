// Package cache implements the personalised serve-response cache. The TTL
// adapts to candidate supply: when few ads survive filtering, a short
// expiry keeps one customer from seeing the same ad on every request and
// lets newly created ads surface quickly.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/db"
	"github.com/coreledger/bankads/internal/models"
	"github.com/coreledger/bankads/internal/observability"
)

// scanBatch is the COUNT hint passed to SCAN during invalidation.
const scanBatch = 100

// Cache is the smart-TTL serve cache over Redis.
type Cache struct {
	Redis   *db.RedisStore
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry

	// ThinTTL applies when the post-filter candidate count is at most
	// ThinSupplyMax; NormalTTL otherwise.
	ThinTTL       time.Duration
	NormalTTL     time.Duration
	ThinSupplyMax int
}

// New constructs a Cache.
func New(rs *db.RedisStore, logger *zap.Logger, metrics observability.MetricsRegistry, thinTTL, normalTTL time.Duration, thinSupplyMax int) *Cache {
	return &Cache{
		Redis:         rs,
		Logger:        logger,
		Metrics:       metrics,
		ThinTTL:       thinTTL,
		NormalTTL:     normalTTL,
		ThinSupplyMax: thinSupplyMax,
	}
}

// Key builds the cache key for a (segment, channel, customer) triple.
// The customer id must already be sanitised.
func Key(segment models.Segment, channel models.Channel, sanitizedCustomerID string) string {
	return fmt.Sprintf("ad:%s:%s:%s", segment, channel, sanitizedCustomerID)
}

// Get returns the cached response for the key, or nil on miss, error, or
// KV unavailability.
func (c *Cache) Get(ctx context.Context, key string) *models.ServeResponse {
	if !c.Redis.IsAvailable() {
		c.Metrics.IncrementCacheLookups("skip")
		return nil
	}
	raw, err := c.Redis.Client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.Logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		c.Metrics.IncrementCacheLookups("miss")
		return nil
	}
	var resp models.ServeResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		c.Logger.Warn("cache payload corrupt", zap.String("key", key), zap.Error(err))
		c.Metrics.IncrementCacheLookups("miss")
		return nil
	}
	c.Metrics.IncrementCacheLookups("hit")
	return &resp
}

// Put stores the response with the TTL chosen from candidate supply.
// Errors are logged and swallowed.
func (c *Cache) Put(ctx context.Context, key string, resp models.ServeResponse, candidateCount int) {
	if !c.Redis.IsAvailable() {
		return
	}
	ttl := c.NormalTTL
	if candidateCount <= c.ThinSupplyMax {
		ttl = c.ThinTTL
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		c.Logger.Error("cache marshal", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.Redis.Client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.Logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateForAd removes every cached response the given ad could now be
// eligible for: one SCAN cycle per (segment, channel) pair, collected in
// batches and deleted in one DEL. Channels default to {ATM} when absent to
// match the catalog schema default. Failures are logged, never propagated;
// the mutation that triggered the invalidation has already succeeded.
func (c *Cache) InvalidateForAd(ctx context.Context, ad models.Ad) {
	if !c.Redis.IsAvailable() {
		c.Logger.Warn("skipping cache invalidation, redis unavailable", zap.String("ad_id", ad.ID))
		return
	}

	channels := ad.Channels
	if len(channels) == 0 {
		channels = []models.Channel{models.ChannelATM}
	}

	var keys []string
	for _, seg := range ad.Segments {
		for _, ch := range channels {
			pattern := fmt.Sprintf("ad:%s:%s:*", seg, ch)
			var cursor uint64
			for {
				batch, next, err := c.Redis.Client.Scan(ctx, cursor, pattern, scanBatch).Result()
				if err != nil {
					c.Logger.Warn("cache invalidation scan failed",
						zap.String("pattern", pattern), zap.Error(err))
					break
				}
				keys = append(keys, batch...)
				cursor = next
				if cursor == 0 {
					break
				}
			}
		}
	}

	if len(keys) == 0 {
		return
	}
	if err := c.Redis.Client.Del(ctx, keys...).Err(); err != nil {
		c.Logger.Warn("cache invalidation delete failed",
			zap.Int("keys", len(keys)), zap.Error(err))
		return
	}
	c.Metrics.AddCacheInvalidations(len(keys))
	c.Logger.Info("invalidated cached responses",
		zap.String("ad_id", ad.ID), zap.Int("keys", len(keys)))
}
