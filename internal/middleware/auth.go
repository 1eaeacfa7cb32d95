package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type apiKeyKey struct{}
type tierKey struct{}

// APIKeyAuth guards admin and event routes. The key set and per-key tiers
// come from configuration; a missing key is 401, an unknown key 403.
func APIKeyAuth(keyTiers map[string]string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				writeAuthError(w, http.StatusUnauthorized, "API key required")
				return
			}
			tier, ok := keyTiers[apiKey]
			if !ok {
				logger.Warn("rejected unknown api key", zap.String("path", r.URL.Path))
				writeAuthError(w, http.StatusForbidden, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyKey{}, apiKey)
			ctx = context.WithValue(ctx, tierKey{}, tier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyFromContext returns the authenticated API key, if any.
func APIKeyFromContext(ctx context.Context) (string, bool) {
	k, ok := ctx.Value(apiKeyKey{}).(string)
	return k, ok
}

// TierFromContext returns the authenticated caller's tier name, if any.
func TierFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tierKey{}).(string)
	return t, ok
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
