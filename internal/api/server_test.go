package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/analytics"
	"github.com/coreledger/bankads/internal/cache"
	"github.com/coreledger/bankads/internal/config"
	"github.com/coreledger/bankads/internal/db"
	"github.com/coreledger/bankads/internal/logic"
	"github.com/coreledger/bankads/internal/logic/filters"
	"github.com/coreledger/bankads/internal/logic/ratelimit"
	"github.com/coreledger/bankads/internal/logic/scoring"
	"github.com/coreledger/bankads/internal/models"
	"github.com/coreledger/bankads/internal/observability"
	"github.com/coreledger/bankads/internal/profile"
)

const testAPIKey = "test-admin-key-12345"

type apiFixture struct {
	server   *Server
	handler  http.Handler
	catalog  *db.InMemoryCatalog
	profiles *profile.Store
	redis    *db.RedisStore
	mr       *miniredis.Miniredis
	sink     *analytics.MockSink
}

func newAPIFixture(t *testing.T, ipMax int) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	metrics := &observability.MockMetricsRegistry{}
	rs := db.NewRedisStore(client)
	catalog := db.NewInMemoryCatalog()
	sink := analytics.NewMockSink()

	profiles := profile.NewStore(rs, logger, 24*time.Hour, 24*time.Hour)
	serveCache := cache.New(rs, logger, metrics, 30*time.Second, 120*time.Second, 3)

	selector := logic.NewAdSelector(catalog, rs, profiles, serveCache, sink,
		scoring.NewScorer(scoring.DefaultWeights),
		filters.DefaultFrequencyConfig(),
		models.DefaultSegmentThresholds,
		logger, metrics)
	selector.Background = func(fn func()) { fn() }

	limiter := ratelimit.New(rs, logger, metrics, ratelimit.Config{
		Enabled:    true,
		IPWindow:   time.Minute,
		IPMax:      ipMax,
		TierWindow: time.Minute,
		TierMax:    map[ratelimit.Tier]int{ratelimit.TierStandard: 100, ratelimit.TierPremium: 200, ratelimit.TierEnterprise: 300},
	})

	cfg := config.Config{APIKeys: map[string]string{testAPIKey: "premium"}}
	srv := NewServer(logger, rs, catalog, selector, serveCache, limiter, sink, metrics, cfg)

	return &apiFixture{
		server:   srv,
		handler:  srv.Router(),
		catalog:  catalog,
		profiles: profiles,
		redis:    rs,
		mr:       mr,
		sink:     sink,
	}
}

func (f *apiFixture) seedAd(t *testing.T, ad models.Ad) models.Ad {
	t.Helper()
	now := time.Now().UTC()
	if len(ad.Segments) == 0 {
		ad.Segments = []models.Segment{models.SegmentMass}
	}
	if len(ad.Channels) == 0 {
		ad.Channels = []models.Channel{models.ChannelATM}
	}
	if ad.StartDate.IsZero() {
		ad.StartDate = now.Add(-24 * time.Hour)
	}
	if ad.EndDate.IsZero() {
		ad.EndDate = now.Add(24 * time.Hour)
	}
	if ad.Status == "" {
		ad.Status = models.AdStatusActive
	}
	if ad.Title == "" {
		ad.Title = "ad " + ad.ID
	}
	if ad.ImageURL == "" {
		ad.ImageURL = "https://cdn.example.com/" + ad.ID + ".png"
	}
	require.NoError(t, f.catalog.InsertAd(context.Background(), &ad))
	return ad
}

func (f *apiFixture) post(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t, 100)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["redis"])
}

func TestServeEndpoint(t *testing.T) {
	f := newAPIFixture(t, 100)
	f.seedAd(t, models.Ad{ID: "ad-1", Title: "Premium savings"})

	w := f.post("/api/v1/ads/serve",
		map[string]any{"balance": 120_000, "channel": "ATM", "customerId": "CUST-001"}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "ad-1", body["adId"])
	assert.Equal(t, "mass", body["segment"])
	assert.Equal(t, "ATM", body["channel"])
	assert.NotContains(t, body, "fallback")

	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining"))
}

func TestServeEndpointInvalidBody(t *testing.T) {
	f := newAPIFixture(t, 100)

	req := httptest.NewRequest("POST", "/api/v1/ads/serve", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", decodeBody(t, w)["error"])
}

func TestServeEndpointValidation(t *testing.T) {
	f := newAPIFixture(t, 100)

	w := f.post("/api/v1/ads/serve", map[string]any{"customerId": "C1"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "balance")

	w = f.post("/api/v1/ads/serve", map[string]any{"balance": 100}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "customerId")
}

func TestServeEndpointNoAd(t *testing.T) {
	f := newAPIFixture(t, 100)

	w := f.post("/api/v1/ads/serve",
		map[string]any{"balance": 120_000, "customerId": "C1"}, nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No ad available", decodeBody(t, w)["message"])
}

func TestServeEndpointRateLimited(t *testing.T) {
	f := newAPIFixture(t, 2)
	f.seedAd(t, models.Ad{ID: "ad-1"})
	body := map[string]any{"balance": 120_000, "customerId": "C1"}
	headers := map[string]string{"X-Real-IP": "203.0.113.9"}

	for i := 0; i < 2; i++ {
		w := f.post("/api/v1/ads/serve", body, headers)
		require.Equal(t, http.StatusOK, w.Code, "request %d within the limit", i+1)
	}

	w := f.post("/api/v1/ads/serve", body, headers)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	resp := decodeBody(t, w)
	assert.Equal(t, "rate limit exceeded", resp["error"])
	assert.Equal(t, float64(60), resp["retryAfter"])
	assert.NotContains(t, resp, "tier", "ip-layer denials carry no tier")

	// A different caller is unaffected.
	w = f.post("/api/v1/ads/serve", body, map[string]string{"X-Real-IP": "203.0.113.10"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAdRequiresAPIKey(t *testing.T) {
	f := newAPIFixture(t, 100)
	ad := map[string]any{"title": "t", "imageUrl": "u", "segments": []string{"mass"}}

	w := f.post("/api/v1/ads/create", ad, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "API key required", decodeBody(t, w)["error"])

	w = f.post("/api/v1/ads/create", ad, map[string]string{"X-API-Key": "wrong-key"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid API key", decodeBody(t, w)["error"])
}

func TestCreateAd(t *testing.T) {
	f := newAPIFixture(t, 100)

	// A cached response for the targeted audience must go stale on create.
	staleKey := cache.Key(models.SegmentMass, models.ChannelATM, "C1")
	otherKey := cache.Key(models.SegmentHNW, models.ChannelATM, "C2")
	require.NoError(t, f.mr.Set(staleKey, "{}"))
	require.NoError(t, f.mr.Set(otherKey, "{}"))

	now := time.Now().UTC()
	w := f.post("/api/v1/ads/create", map[string]any{
		"title":     "New offer",
		"imageUrl":  "https://cdn.example.com/new.png",
		"segments":  []string{"mass"},
		"channels":  []string{"ATM"},
		"startDate": now.Add(-time.Hour).Format(time.RFC3339),
		"endDate":   now.Add(24 * time.Hour).Format(time.RFC3339),
	}, map[string]string{"X-API-Key": testAPIKey})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	adID, _ := body["id"].(string)
	require.NotEmpty(t, adID, "server assigns an id")

	stored, err := f.catalog.GetAd(context.Background(), adID)
	require.NoError(t, err)
	assert.Equal(t, "New offer", stored.Title)
	assert.Equal(t, models.AdStatusActive, stored.Status, "status defaults to active")

	assert.False(t, f.mr.Exists(staleKey), "matching cache entries are invalidated")
	assert.True(t, f.mr.Exists(otherKey), "unrelated cache entries survive")
}

func TestCreateAdRejectsInvalid(t *testing.T) {
	f := newAPIFixture(t, 100)

	w := f.post("/api/v1/ads/create", map[string]any{
		"imageUrl": "https://cdn.example.com/x.png",
		"segments": []string{"mass"},
	}, map[string]string{"X-API-Key": testAPIKey})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "title")
}

func TestImpressionEndpoint(t *testing.T) {
	f := newAPIFixture(t, 100)
	f.seedAd(t, models.Ad{ID: "ad-1"})

	w := f.post("/api/v1/ads/impression",
		map[string]any{"adId": "ad-1", "customerId": "CUST-001"},
		map[string]string{"X-API-Key": testAPIKey})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "recorded", decodeBody(t, w)["status"])

	stored, err := f.catalog.GetAd(context.Background(), "ad-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Impressions)

	p := f.profiles.Get(context.Background(), "CUST-001")
	assert.Len(t, p.Impressions, 1, "confirmed impressions feed the frequency cap")

	events := f.sink.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, "impression", events[0].Type)
}

func TestClickEndpoint(t *testing.T) {
	f := newAPIFixture(t, 100)
	f.seedAd(t, models.Ad{ID: "ad-1"})

	w := f.post("/api/v1/ads/click",
		map[string]any{"adId": "ad-1"},
		map[string]string{"X-API-Key": testAPIKey})

	require.Equal(t, http.StatusOK, w.Code)
	stored, err := f.catalog.GetAd(context.Background(), "ad-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Clicks)

	p := f.profiles.Get(context.Background(), "anyone")
	assert.Empty(t, p.Impressions, "clicks never touch the frequency-cap profile")
}

func TestEventEndpointUnknownAd(t *testing.T) {
	f := newAPIFixture(t, 100)

	w := f.post("/api/v1/ads/impression",
		map[string]any{"adId": "ghost"},
		map[string]string{"X-API-Key": testAPIKey})

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ad not found", decodeBody(t, w)["error"])
}

func TestEventEndpointRequiresAdID(t *testing.T) {
	f := newAPIFixture(t, 100)

	w := f.post("/api/v1/ads/click",
		map[string]any{"customerId": "C1"},
		map[string]string{"X-API-Key": testAPIKey})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "adId is required", decodeBody(t, w)["error"])
}

func TestEventEndpointTierLimit(t *testing.T) {
	f := newAPIFixture(t, 100)
	f.seedAd(t, models.Ad{ID: "ad-1"})

	// Premium keys inherit the premium ceiling on the key layer.
	w := f.post("/api/v1/ads/click",
		map[string]any{"adId": "ad-1"},
		map[string]string{"X-API-Key": testAPIKey, "X-Real-IP": fmt.Sprintf("198.51.100.%d", 1)})

	require.Equal(t, http.StatusOK, w.Code)
	// The key bucket keys off the credential tail, never the full key.
	found := false
	for _, k := range f.mr.Keys() {
		if k == "ratelimit:apikey:ey-12345:/api/v1/ads/click" {
			found = true
		}
		assert.NotContains(t, k, testAPIKey)
	}
	assert.True(t, found, "expected an apikey bucket keyed by the credential tail")
}
