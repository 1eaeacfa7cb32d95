package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	RedisAddr     string
	PostgresDSN   string
	ClickHouseDSN string
	ServiceName   string

	// Segment thresholds (upper bounds, exclusive)
	SegmentLowMax      float64
	SegmentMassMax     float64
	SegmentAffluentMax float64

	// Frequency capping
	FrequencyCapPerDay  int
	FrequencyCooldown   time.Duration
	ImpressionRetention time.Duration
	ProfileTTL          time.Duration

	// Scoring
	WeightPriority       float64
	WeightCTR            float64
	WeightRecency        float64
	WeightFreshness      float64
	CTRMinImpressions    int64
	CTRDefault           float64
	CTRCeiling           float64
	RecencyHorizon       time.Duration

	// Serve cache
	CacheHighTTL        time.Duration
	CacheLowTTL         time.Duration
	CacheThinSupplyMax  int

	// Rate limiting
	RateLimitEnabled bool
	IPWindow         time.Duration
	IPMaxRequests    int
	TierWindow       time.Duration
	TierStandardMax  int
	TierPremiumMax   int
	TierEnterpriseMax int

	// Catalog
	CatalogQueryTimeout time.Duration

	// API keys, "key:tier" comma separated. Tier defaults to standard.
	APIKeys map[string]string

	// Tracing
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8788")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)

	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.ServiceName = getenv("SERVICE_NAME", "bankads")

	cfg.SegmentLowMax = envFloat("SEGMENT_LOW_MAX", 50_000)
	cfg.SegmentMassMax = envFloat("SEGMENT_MASS_MAX", 200_000)
	cfg.SegmentAffluentMax = envFloat("SEGMENT_AFFLUENT_MAX", 1_000_000)

	cfg.FrequencyCapPerDay = envInt("FREQUENCY_CAP_PER_DAY", 3)
	cfg.FrequencyCooldown = envDuration("FREQUENCY_COOLDOWN", 2*time.Hour)
	cfg.ImpressionRetention = envDuration("IMPRESSION_RETENTION", 24*time.Hour)
	cfg.ProfileTTL = envDuration("PROFILE_TTL", 24*time.Hour)

	cfg.WeightPriority = envFloat("SCORE_WEIGHT_PRIORITY", 0.35)
	cfg.WeightCTR = envFloat("SCORE_WEIGHT_CTR", 0.25)
	cfg.WeightRecency = envFloat("SCORE_WEIGHT_RECENCY", 0.20)
	cfg.WeightFreshness = envFloat("SCORE_WEIGHT_FRESHNESS", 0.20)
	cfg.CTRMinImpressions = int64(envInt("CTR_MIN_IMPRESSIONS", 10))
	cfg.CTRDefault = envFloat("CTR_DEFAULT", 0.02)
	cfg.CTRCeiling = envFloat("CTR_CEILING", 0.1)
	cfg.RecencyHorizon = envDuration("RECENCY_HORIZON", 30*24*time.Hour)

	cfg.CacheHighTTL = envDuration("CACHE_HIGH_TTL", 30*time.Second)
	cfg.CacheLowTTL = envDuration("CACHE_LOW_TTL", 120*time.Second)
	cfg.CacheThinSupplyMax = envInt("CACHE_THIN_SUPPLY_MAX", 3)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.IPWindow = envDuration("RATE_LIMIT_IP_WINDOW", 60*time.Second)
	cfg.IPMaxRequests = envInt("RATE_LIMIT_IP_MAX", 100)
	cfg.TierWindow = envDuration("RATE_LIMIT_TIER_WINDOW", 60*time.Second)
	cfg.TierStandardMax = envInt("RATE_LIMIT_STANDARD_MAX", 500)
	cfg.TierPremiumMax = envInt("RATE_LIMIT_PREMIUM_MAX", 1000)
	cfg.TierEnterpriseMax = envInt("RATE_LIMIT_ENTERPRISE_MAX", 5000)

	cfg.CatalogQueryTimeout = envDuration("CATALOG_QUERY_TIMEOUT", 2*time.Second)

	cfg.APIKeys = envKeyTiers("API_KEYS")

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TracingEndpoint = getenv("TRACING_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// Validate enforces the startup invariants. The server must refuse to start
// when any of these fail; a misconfigured scorer silently skews delivery.
func (c Config) Validate() error {
	sum := c.WeightPriority + c.WeightCTR + c.WeightRecency + c.WeightFreshness
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("score weights must sum to 1.0, got %.4f", sum)
	}
	if !(c.SegmentLowMax < c.SegmentMassMax && c.SegmentMassMax < c.SegmentAffluentMax) {
		return fmt.Errorf("segment thresholds must be strictly increasing")
	}
	if c.FrequencyCapPerDay <= 0 {
		return fmt.Errorf("frequency cap must be positive")
	}
	if c.FrequencyCooldown <= 0 || c.FrequencyCooldown > c.ImpressionRetention {
		return fmt.Errorf("frequency cooldown must be positive and within the impression retention window")
	}
	if c.ProfileTTL <= 0 || c.CacheHighTTL <= 0 || c.CacheLowTTL <= 0 {
		return fmt.Errorf("TTLs must be positive")
	}
	if c.CacheHighTTL > c.CacheLowTTL {
		return fmt.Errorf("thin-supply cache TTL must not exceed the normal cache TTL")
	}
	if c.CTRMinImpressions < 0 || c.CTRDefault < 0 || c.CTRCeiling <= 0 {
		return fmt.Errorf("CTR parameters out of range")
	}
	if c.IPMaxRequests <= 0 || c.TierStandardMax <= 0 || c.TierPremiumMax <= 0 || c.TierEnterpriseMax <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.CatalogQueryTimeout <= 0 {
		return fmt.Errorf("catalog query timeout must be positive")
	}
	return nil
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "30s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. When unset or invalid,
// def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envKeyTiers parses a comma separated list of "apikey:tier" pairs. A bare
// key with no tier maps to the standard tier.
func envKeyTiers(key string) map[string]string {
	out := make(map[string]string)
	v := os.Getenv(key)
	if v == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, tier, found := strings.Cut(pair, ":")
		if !found || tier == "" {
			tier = "standard"
		}
		out[k] = tier
	}
	return out
}
