package api

import (
	"net/http"
	"time"
)

// HealthHandler responds with liveness plus dependency state. Redis being
// down is not unhealthy, just degraded.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"redis":  s.Store.IsAvailable(),
	})

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
