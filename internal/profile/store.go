// Package profile keeps per-customer impression history in Redis for
// frequency capping. The store is deliberately forgiving: reads never fail
// (a miss or an error yields an empty profile) and writes log and return
// so a Redis outage never blocks serving.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/db"
	"github.com/coreledger/bankads/internal/models"
)

// Store reads and writes user profiles in the KV store.
type Store struct {
	Redis  *db.RedisStore
	Logger *zap.Logger

	// TTL is the profile key expiry; Retention bounds how far back
	// impression records are kept on write.
	TTL       time.Duration
	Retention time.Duration

	now func() time.Time
}

// NewStore constructs a profile store with the given expiry policy.
func NewStore(rs *db.RedisStore, logger *zap.Logger, ttl, retention time.Duration) *Store {
	return &Store{Redis: rs, Logger: logger, TTL: ttl, Retention: retention, now: time.Now}
}

// SetNow overrides the store clock for tests.
func (s *Store) SetNow(fn func() time.Time) {
	s.now = fn
}

// Key returns the KV key for a customer profile.
func Key(customerID string) string {
	return fmt.Sprintf("userprofile:%s", customerID)
}

// Get returns the customer's profile. A missing key, an unavailable KV
// store, or a corrupt payload all yield a fresh empty profile; Get never
// fails.
func (s *Store) Get(ctx context.Context, customerID string) models.UserProfile {
	empty := models.NewUserProfile(customerID)
	if !s.Redis.IsAvailable() {
		return empty
	}

	raw, err := s.Redis.Client.Get(ctx, Key(customerID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.Logger.Warn("profile read failed, using empty profile",
				zap.String("customer_id", customerID), zap.Error(err))
		}
		return empty
	}

	var p models.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.Logger.Warn("profile payload corrupt, using empty profile",
			zap.String("customer_id", customerID), zap.Error(err))
		return empty
	}
	p.CustomerID = customerID
	return p
}

// RecordImpression appends an impression for adID, prunes records older
// than the retention window, and persists with a refreshed TTL. Errors are
// logged and swallowed; callers fire-and-forget this. Concurrent writers
// for the same customer race under last-writer-wins, which the frequency
// cap tolerates.
func (s *Store) RecordImpression(ctx context.Context, customerID, adID string) {
	if !s.Redis.IsAvailable() {
		return
	}
	now := s.now()

	p := s.Get(ctx, customerID)
	p.Impressions = append(p.Impressions, models.ImpressionRecord{AdID: adID, Timestamp: now})
	p.Prune(now, s.Retention)
	p.LastUpdated = now

	payload, err := json.Marshal(p)
	if err != nil {
		s.Logger.Error("profile marshal", zap.String("customer_id", customerID), zap.Error(err))
		return
	}

	key := Key(customerID)
	_, err = s.Redis.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, 0)
		pipe.Expire(ctx, key, s.TTL)
		return nil
	})
	if err != nil {
		s.Logger.Warn("profile write failed",
			zap.String("customer_id", customerID), zap.String("ad_id", adID), zap.Error(err))
	}
}
