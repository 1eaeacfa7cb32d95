package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/middleware"
	"github.com/coreledger/bankads/internal/models"
)

// CreateAdHandler handles POST /api/v1/ads/create. A successful insert
// kicks off asynchronous invalidation of every cached response the new ad
// is now eligible for; invalidation failures never fail the create.
func (s *Server) CreateAdHandler(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "CreateAdHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/api/v1/ads/create"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "ads_create"
	const method = "POST"

	var ad models.Ad
	if err := json.NewDecoder(r.Body).Decode(&ad); err != nil {
		logger.Warn("decode create request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ad.Normalize()
	if err := ad.Validate(); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.Catalog.InsertAd(r.Context(), &ad); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		logger.Error("insert ad", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create ad"})
		return
	}

	created := ad
	s.Selector.Background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Cache.InvalidateForAd(ctx, created)
	})

	logger.Info("ad created",
		zap.String("ad_id", ad.ID),
		zap.Int("segments", len(ad.Segments)),
		zap.Int("channels", len(ad.Channels)))
	span.SetAttributes(attribute.String("ad.id", ad.ID))

	s.Metrics.IncrementRequests(endpoint, method, "201")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusCreated, ad)
}
