// Package scoring ranks filtered candidates with a composite weighted
// score. All four components normalise into [0,1] over the candidate set,
// so the weighted sum is directly comparable between ads.
package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/coreledger/bankads/internal/models"
)

// Weights are the component weights of the composite score. They must sum
// to 1.0; Validate is called at startup and the server refuses to boot on
// failure.
type Weights struct {
	Priority  float64
	CTR       float64
	Recency   float64
	Freshness float64
}

// DefaultWeights is the production weighting.
var DefaultWeights = Weights{Priority: 0.35, CTR: 0.25, Recency: 0.20, Freshness: 0.20}

// Validate checks that the weights sum to 1.0 within 1e-3.
func (w Weights) Validate() error {
	sum := w.Priority + w.CTR + w.Recency + w.Freshness
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("score weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}

// Scorer computes composite scores for candidate sets.
type Scorer struct {
	Weights Weights

	// Ads with fewer than CTRMinImpressions impressions score with
	// CTRDefault instead of their own (noisy) CTR. CTRCeiling is the CTR
	// that maps to a full component score.
	CTRMinImpressions int64
	CTRDefault        float64
	CTRCeiling        float64

	// RecencyHorizon is how long after its start date an ad's recency
	// component decays to zero.
	RecencyHorizon time.Duration
}

// NewScorer returns a scorer with production defaults for the CTR and
// recency parameters.
func NewScorer(w Weights) Scorer {
	return Scorer{
		Weights:           w,
		CTRMinImpressions: 10,
		CTRDefault:        0.02,
		CTRCeiling:        0.1,
		RecencyHorizon:    30 * 24 * time.Hour,
	}
}

// ScoredAd pairs an ad with its composite score.
type ScoredAd struct {
	Ad    models.Ad
	Score float64
}

// Rank scores every candidate and returns them best-first. Ties break on
// higher priority, then earlier start date, then ad id, so replicas always
// agree on the winner.
func (s Scorer) Rank(ads []models.Ad, now time.Time) []ScoredAd {
	if len(ads) == 0 {
		return nil
	}

	maxPriority := 1.0
	maxImpressions := int64(1)
	for _, ad := range ads {
		if p := effectivePriority(ad); p > maxPriority {
			maxPriority = p
		}
		if ad.Impressions > maxImpressions {
			maxImpressions = ad.Impressions
		}
	}

	out := make([]ScoredAd, 0, len(ads))
	for _, ad := range ads {
		score := s.Weights.Priority*(effectivePriority(ad)/maxPriority) +
			s.Weights.CTR*s.ctrScore(ad) +
			s.Weights.Recency*s.recencyScore(ad, now) +
			s.Weights.Freshness*(1-float64(ad.Impressions)/float64(maxImpressions))
		out = append(out, ScoredAd{Ad: ad, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := effectivePriority(a.Ad), effectivePriority(b.Ad); pa != pb {
			return pa > pb
		}
		if !a.Ad.StartDate.Equal(b.Ad.StartDate) {
			return a.Ad.StartDate.Before(b.Ad.StartDate)
		}
		return a.Ad.ID < b.Ad.ID
	})
	return out
}

func (s Scorer) ctrScore(ad models.Ad) float64 {
	ctr := s.CTRDefault
	if ad.Impressions >= s.CTRMinImpressions {
		ctr = float64(ad.Clicks) / float64(ad.Impressions)
	}
	score := ctr / s.CTRCeiling
	if score > 1 {
		score = 1
	}
	return score
}

func (s Scorer) recencyScore(ad models.Ad, now time.Time) float64 {
	age := now.Sub(ad.StartDate)
	score := 1 - float64(age)/float64(s.RecencyHorizon)
	if score < 0 {
		return 0
	}
	return score
}

func effectivePriority(ad models.Ad) float64 {
	if ad.Priority <= 0 {
		return 1
	}
	return ad.Priority
}
