// Package logic contains the ad serving pipeline: validation, cache
// lookup, candidate filtering, scoring, and the degradation paths that
// keep a response flowing while dependencies misbehave.
package logic

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/analytics"
	"github.com/coreledger/bankads/internal/cache"
	"github.com/coreledger/bankads/internal/db"
	"github.com/coreledger/bankads/internal/logic/filters"
	"github.com/coreledger/bankads/internal/logic/scoring"
	"github.com/coreledger/bankads/internal/models"
	"github.com/coreledger/bankads/internal/observability"
	"github.com/coreledger/bankads/internal/profile"
)

// maxCustomerIDLength bounds the identifier so cache keys stay small.
const maxCustomerIDLength = 64

// backgroundTimeout bounds fire-and-forget work spawned per serve.
const backgroundTimeout = 5 * time.Second

// AdSelector composes the serving pipeline.
type AdSelector struct {
	Catalog   db.Catalog
	Redis     *db.RedisStore
	Profiles  *profile.Store
	Cache     *cache.Cache
	Analytics analytics.Sink

	Scorer     scoring.Scorer
	Frequency  filters.FrequencyConfig
	Thresholds models.SegmentThresholds

	Logger  *zap.Logger
	Metrics observability.MetricsRegistry

	// Now is the injectable clock; Background runs fire-and-forget work.
	// Tests replace Background with a synchronous runner.
	Now        func() time.Time
	Background func(func())
}

// NewAdSelector wires a selector with production defaults for the clock
// and background runner.
func NewAdSelector(catalog db.Catalog, rs *db.RedisStore, profiles *profile.Store, c *cache.Cache, sink analytics.Sink, scorer scoring.Scorer, freq filters.FrequencyConfig, thresholds models.SegmentThresholds, logger *zap.Logger, metrics observability.MetricsRegistry) *AdSelector {
	return &AdSelector{
		Catalog:    catalog,
		Redis:      rs,
		Profiles:   profiles,
		Cache:      c,
		Analytics:  sink,
		Scorer:     scorer,
		Frequency:  freq,
		Thresholds: thresholds,
		Logger:     logger,
		Metrics:    metrics,
		Now:        time.Now,
		Background: func(fn func()) { go fn() },
	}
}

// Serve runs the full pipeline for one request. Client errors come back as
// *ValidationError or ErrNoAdAvailable; any other failure triggers the
// degraded fallback before an error is surfaced.
func (s *AdSelector) Serve(ctx context.Context, req models.ServeRequest) (*models.ServeResponse, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, NewValidationError("customerId is required")
	}
	if len(customerID) > maxCustomerIDLength {
		return nil, NewValidationError(fmt.Sprintf("customerId must be at most %d characters", maxCustomerIDLength))
	}
	if req.Balance == nil || math.IsNaN(*req.Balance) || math.IsInf(*req.Balance, 0) || *req.Balance < 0 {
		return nil, NewValidationError("balance must be a non-negative number")
	}

	channel := req.Channel
	if channel == "" {
		channel = models.ChannelATM
	}
	segment := s.Thresholds.SegmentFor(*req.Balance)
	sanitized := models.SanitizeCustomerID(customerID)

	resp, err := s.serve(ctx, segment, channel, customerID, sanitized)
	if err == nil {
		return resp, nil
	}
	if err == ErrNoAdAvailable {
		s.Metrics.IncrementServeOutcome("no_ad")
		if s.Analytics != nil {
			s.Background(func() {
				bctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
				defer cancel()
				s.Analytics.RecordEvent(bctx, analytics.Event{
					Type:       "no_ad",
					CustomerID: customerID,
					Segment:    segment,
					Channel:    channel,
				})
			})
		}
		return nil, err
	}

	// Degraded path: one priority-ordered catalog lookup, no personalisation.
	s.Logger.Error("serve pipeline failed, trying degraded fallback",
		zap.String("customer_id", customerID),
		zap.String("segment", string(segment)),
		zap.String("channel", string(channel)),
		zap.Error(err))

	ad, ferr := s.Catalog.FindFallback(ctx, segment, channel, s.Now())
	if ferr != nil {
		s.Metrics.IncrementServeOutcome("error")
		return nil, fmt.Errorf("serve failed (%v) and fallback failed: %w", err, ferr)
	}

	// The fallback path intentionally skips profile recording; observed
	// behavior preserved pending a product decision.
	s.Metrics.IncrementServeOutcome("fallback")
	fb := buildResponse(ad, segment, channel)
	fb.Fallback = true
	return fb, nil
}

func (s *AdSelector) serve(ctx context.Context, segment models.Segment, channel models.Channel, customerID, sanitized string) (*models.ServeResponse, error) {
	now := s.Now()
	key := cache.Key(segment, channel, sanitized)

	if cached := s.Cache.Get(ctx, key); cached != nil {
		s.Metrics.IncrementServeOutcome("cache_hit")
		return cached, nil
	}

	prof := s.Profiles.Get(ctx, customerID)

	candidates, err := s.Catalog.FindCandidates(ctx, segment, channel, now)
	if err != nil {
		return nil, fmt.Errorf("catalog query: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoAdAvailable
	}

	slotEligible, slotExcluded := filters.ByTimeSlot(candidates, now)
	eligible, freqExcluded := filters.ByFrequency(slotEligible, prof, now, s.Frequency)

	if n := len(slotExcluded) + len(freqExcluded); n > 0 {
		s.Logger.Debug("candidates excluded by filters",
			zap.String("customer_id", customerID),
			zap.Int("time_slot", len(slotExcluded)),
			zap.Int("frequency", len(freqExcluded)))
	}

	var winner models.Ad
	if len(eligible) == 0 {
		// Everything was capped out. Rather than starve the placement,
		// bypass the caps and show the least-exposed ad from the
		// pre-filter set.
		winner = leastShown(candidates)
		s.Logger.Debug("all candidates filtered, serving least-shown ad",
			zap.String("customer_id", customerID), zap.String("ad_id", winner.ID))
	} else {
		winner = s.Scorer.Rank(eligible, now)[0].Ad
	}

	resp := buildResponse(&winner, segment, channel)

	adID := winner.ID
	s.Background(func() {
		bctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		s.Profiles.RecordImpression(bctx, customerID, adID)
		if err := s.Catalog.IncrementImpressions(bctx, adID); err != nil {
			s.Logger.Warn("impression increment failed", zap.String("ad_id", adID), zap.Error(err))
		}
		if s.Analytics != nil {
			s.Analytics.RecordEvent(bctx, analytics.Event{
				Type:       "ad_served",
				AdID:       adID,
				CustomerID: customerID,
				Segment:    segment,
				Channel:    channel,
			})
		}
	})
	eligibleCount := len(eligible)
	cached := *resp
	s.Background(func() {
		bctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		s.Cache.Put(bctx, key, cached, eligibleCount)
	})

	s.Metrics.IncrementServeOutcome("served")
	if observability.ShouldSample(observability.GetSamplingRate()) {
		s.Logger.Info("ad served",
			zap.String("customer_id", customerID),
			zap.String("ad_id", adID),
			zap.String("segment", string(segment)),
			zap.String("channel", string(channel)),
			zap.Int("eligible", eligibleCount))
	}
	return resp, nil
}

// leastShown picks the candidate with the fewest recorded impressions,
// breaking ties by id for determinism across replicas.
func leastShown(ads []models.Ad) models.Ad {
	best := ads[0]
	for _, ad := range ads[1:] {
		if ad.Impressions < best.Impressions ||
			(ad.Impressions == best.Impressions && ad.ID < best.ID) {
			best = ad
		}
	}
	return best
}

func buildResponse(ad *models.Ad, segment models.Segment, channel models.Channel) *models.ServeResponse {
	return &models.ServeResponse{
		AdID:     ad.ID,
		Title:    ad.Title,
		ImageURL: ad.ImageURL,
		VideoURL: ad.VideoURL,
		CTA:      ad.CTA,
		Segment:  segment,
		Channel:  channel,
	}
}
