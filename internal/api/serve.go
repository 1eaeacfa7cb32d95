package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/logic"
	"github.com/coreledger/bankads/internal/middleware"
	"github.com/coreledger/bankads/internal/models"
)

// ServeAdHandler handles POST /api/v1/ads/serve.
func (s *Server) ServeAdHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ServeAdHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/api/v1/ads/serve"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "ads_serve"
	const method = "POST"

	var req models.ServeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode serve request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, err := s.Selector.Serve(ctx, req)
	if err != nil {
		var verr *logic.ValidationError
		switch {
		case errors.As(err, &verr):
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Msg})
		case errors.Is(err, logic.ErrNoAdAvailable):
			span.SetAttributes(attribute.String("ad.result", "no_ad"))
			s.Metrics.IncrementRequests(endpoint, method, "404")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "No ad available"})
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "serve failed")
			logger.Error("serve failed", zap.Error(err))
			s.Metrics.IncrementRequests(endpoint, method, "500")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to serve ad"})
		}
		return
	}

	span.SetAttributes(
		attribute.String("ad.result", "served"),
		attribute.String("ad.id", resp.AdID),
		attribute.String("ad.segment", string(resp.Segment)),
		attribute.String("ad.channel", string(resp.Channel)),
		attribute.Bool("ad.fallback", resp.Fallback),
	)

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}
