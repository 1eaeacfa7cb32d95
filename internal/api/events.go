package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/analytics"
	"github.com/coreledger/bankads/internal/db"
	"github.com/coreledger/bankads/internal/middleware"
	"github.com/coreledger/bankads/internal/models"
)

// ImpressionHandler handles POST /api/v1/ads/impression: a client-side
// confirmation that an ad was rendered. When the caller includes a
// customer id the exposure also lands in the frequency-cap profile.
func (s *Server) ImpressionHandler(w http.ResponseWriter, r *http.Request) {
	s.handleEvent(w, r, "impression", s.Catalog.IncrementImpressions)
}

// ClickHandler handles POST /api/v1/ads/click.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
	s.handleEvent(w, r, "click", s.Catalog.IncrementClicks)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request, eventType string, increment func(context.Context, string) error) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	endpoint := "ads_" + eventType
	const method = "POST"

	var req models.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.AdID == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "adId is required"})
		return
	}

	if err := increment(r.Context(), req.AdID); err != nil {
		if errors.Is(err, db.ErrAdNotFound) {
			s.Metrics.IncrementRequests(endpoint, method, "404")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ad not found"})
			return
		}
		// Counter bumps are best-effort; the exposure already happened.
		logger.Warn("event increment failed",
			zap.String("event_type", eventType), zap.String("ad_id", req.AdID), zap.Error(err))
	}

	adID, customerID := req.AdID, req.CustomerID
	s.Selector.Background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if eventType == "impression" && customerID != "" {
			s.Selector.Profiles.RecordImpression(ctx, customerID, adID)
		}
		if s.Analytics != nil {
			s.Analytics.RecordEvent(ctx, analytics.Event{
				Type:       eventType,
				AdID:       adID,
				CustomerID: customerID,
			})
		}
	})

	s.Metrics.IncrementEvent(eventType)
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
