package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coreledger/bankads/internal/logic/ratelimit"
)

// RateLimit applies the two limiter layers in order: per-IP, then
// per-API-key when a key accompanies the request. Admitted requests carry
// the tightest layer's limit headers.
func RateLimit(limiter *ratelimit.Limiter, keyTiers map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			ctx := r.Context()

			tightest := limiter.AllowIP(ctx, ratelimit.ClientIP(r), path)
			if !tightest.Allowed {
				writeRateLimited(w, tightest)
				return
			}

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				tierName := keyTiers[apiKey]
				if t, ok := TierFromContext(ctx); ok {
					tierName = t
				}
				d := limiter.AllowAPIKey(ctx, apiKey, ratelimit.TierFromString(tierName), path)
				if !d.Allowed {
					writeRateLimited(w, d)
					return
				}
				if d.Remaining() < tightest.Remaining() {
					tightest = d
				}
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(tightest.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tightest.Remaining()))
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, d ratelimit.Decision) {
	retryAfter := int(d.Window.Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := map[string]any{
		"error":      "rate limit exceeded",
		"retryAfter": retryAfter,
	}
	if d.Layer == "apikey" {
		body["tier"] = string(d.Tier)
	}
	_ = json.NewEncoder(w).Encode(body)
}
