// Package ratelimit implements a Redis-backed sliding-window rate limiter.
//
// Each bucket is a sorted set of admitted request timestamps. Admitting a
// request prunes expired members, adds the new one, and reads the
// cardinality in a single pipeline, so concurrent admits against the same
// bucket never under-count. The limiter fails open: when Redis is down a
// denied request would be worse than a briefly unthrottled one.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/db"
	"github.com/coreledger/bankads/internal/observability"
)

// Tier is an API-key rate tier.
type Tier string

const (
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// TierFromString maps a tier name to a Tier, defaulting to standard for
// anything unrecognised.
func TierFromString(s string) Tier {
	switch Tier(strings.ToLower(s)) {
	case TierPremium:
		return TierPremium
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierStandard
	}
}

// Config holds the limiter's windows and ceilings.
type Config struct {
	Enabled bool

	IPWindow time.Duration
	IPMax    int

	TierWindow time.Duration
	TierMax    map[Tier]int
}

// Decision is the outcome of one layer check.
type Decision struct {
	Allowed bool
	Layer   string // "ip" or "apikey"
	Limit   int
	Current int
	Window  time.Duration
	Tier    Tier // set on the apikey layer
}

// Remaining returns the requests left in the window, never negative.
func (d Decision) Remaining() int {
	if r := d.Limit - d.Current; r > 0 {
		return r
	}
	return 0
}

// Limiter evaluates the per-IP and per-API-key layers.
type Limiter struct {
	Redis   *db.RedisStore
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry

	cfg    Config
	now    func() time.Time
	suffix func() string
}

// New constructs a Limiter.
func New(rs *db.RedisStore, logger *zap.Logger, metrics observability.MetricsRegistry, cfg Config) *Limiter {
	if cfg.TierMax == nil {
		cfg.TierMax = map[Tier]int{TierStandard: 500, TierPremium: 1000, TierEnterprise: 5000}
	}
	return &Limiter{
		Redis:   rs,
		Logger:  logger,
		Metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
		suffix:  func() string { return uuid.NewString()[:8] },
	}
}

// SetNow overrides the limiter clock for tests.
func (l *Limiter) SetNow(fn func() time.Time) { l.now = fn }

// SetSuffix overrides the member suffix source for reproducible tests.
// Suffixes only need to be unique within one millisecond per bucket.
func (l *Limiter) SetSuffix(fn func() string) { l.suffix = fn }

// AllowIP evaluates the per-IP layer for a request path.
func (l *Limiter) AllowIP(ctx context.Context, ip, path string) Decision {
	key := fmt.Sprintf("ratelimit:ip:%s:%s", ip, path)
	return l.check(ctx, key, "ip", l.cfg.IPWindow, l.cfg.IPMax, TierStandard)
}

// AllowAPIKey evaluates the per-API-key layer. The bucket key uses only
// the key's last eight characters so full credentials never land in Redis.
func (l *Limiter) AllowAPIKey(ctx context.Context, apiKey string, tier Tier, path string) Decision {
	max, ok := l.cfg.TierMax[tier]
	if !ok {
		tier = TierStandard
		max = l.cfg.TierMax[TierStandard]
	}
	key := fmt.Sprintf("ratelimit:apikey:%s:%s", keySuffix(apiKey), path)
	d := l.check(ctx, key, "apikey", l.cfg.TierWindow, max, tier)
	return d
}

// check runs the atomic sliding-window step against one bucket.
func (l *Limiter) check(ctx context.Context, key, layer string, window time.Duration, max int, tier Tier) Decision {
	allowed := Decision{Allowed: true, Layer: layer, Limit: max, Window: window, Tier: tier}
	if !l.cfg.Enabled {
		return allowed
	}
	l.Metrics.IncrementRateLimitRequests(layer)

	if !l.Redis.IsAvailable() {
		l.Logger.Warn("rate limiter failing open, redis unavailable", zap.String("key", key))
		return allowed
	}

	nowMs := l.now().UnixMilli()
	member := fmt.Sprintf("%d:%s", nowMs, l.suffix())

	var card *redis.IntCmd
	_, err := l.Redis.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(nowMs-window.Milliseconds(), 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		l.Logger.Warn("rate limiter failing open, pipeline error", zap.String("key", key), zap.Error(err))
		return allowed
	}

	current := int(card.Val())
	d := Decision{
		Allowed: current <= max,
		Layer:   layer,
		Limit:   max,
		Current: current,
		Window:  window,
		Tier:    tier,
	}
	if !d.Allowed {
		l.Metrics.IncrementRateLimitHits(layer)
	}
	return d
}

// keySuffix returns the last eight characters of an API key.
func keySuffix(apiKey string) string {
	if len(apiKey) <= 8 {
		return apiKey
	}
	return apiKey[len(apiKey)-8:]
}

// ClientIP extracts the caller address: the first X-Forwarded-For entry,
// then X-Real-IP, then "unknown".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return "unknown"
}
