// Package filters holds the serve pipeline's eligibility stages. Each
// filter returns the surviving ads plus a diagnostic list of exclusions so
// the orchestrator can log why supply thinned out.
package filters

import (
	"fmt"
	"time"

	"github.com/coreledger/bankads/internal/models"
)

// Default frequency cap settings.
const (
	DefaultMaxPerDay = 3
	DefaultCooldown  = 2 * time.Hour
	DefaultWindow    = 24 * time.Hour
)

// Exclusion records why an ad was dropped by a filter.
type Exclusion struct {
	AdID   string
	Reason string
}

// ByTimeSlot keeps ads whose time-slot targeting covers the slot at now.
// Ads with no slot restriction run all day.
func ByTimeSlot(ads []models.Ad, now time.Time) ([]models.Ad, []Exclusion) {
	slot := models.SlotFor(now)
	var out []models.Ad
	var excluded []Exclusion
	for _, ad := range ads {
		if ad.AllowsSlot(slot) {
			out = append(out, ad)
		} else {
			excluded = append(excluded, Exclusion{
				AdID:   ad.ID,
				Reason: fmt.Sprintf("outside time slot %s", slot),
			})
		}
	}
	return out, excluded
}

// FrequencyConfig tunes the frequency-cap filter.
type FrequencyConfig struct {
	MaxPerDay int           // impressions of one ad per customer per window
	Cooldown  time.Duration // minimum gap between exposures of one ad
	Window    time.Duration // lookback for the daily count
}

// DefaultFrequencyConfig returns the standard 3/day, 2h-cooldown policy.
func DefaultFrequencyConfig() FrequencyConfig {
	return FrequencyConfig{MaxPerDay: DefaultMaxPerDay, Cooldown: DefaultCooldown, Window: DefaultWindow}
}

// ByFrequency drops ads the customer has seen too often (daily cap) or too
// recently (cooldown), based on the profile's impression history.
func ByFrequency(ads []models.Ad, profile models.UserProfile, now time.Time, cfg FrequencyConfig) ([]models.Ad, []Exclusion) {
	dayCutoff := now.Add(-cfg.Window)
	cooldownCutoff := now.Add(-cfg.Cooldown)

	var out []models.Ad
	var excluded []Exclusion
	for _, ad := range ads {
		count := profile.CountFor(ad.ID, dayCutoff)
		if count >= cfg.MaxPerDay {
			excluded = append(excluded, Exclusion{
				AdID:   ad.ID,
				Reason: fmt.Sprintf("daily cap reached (%d/%d)", count, cfg.MaxPerDay),
			})
			continue
		}
		if last := profile.LastSeen(ad.ID); !last.IsZero() && last.After(cooldownCutoff) {
			excluded = append(excluded, Exclusion{
				AdID:   ad.ID,
				Reason: fmt.Sprintf("cooldown, last shown %s ago", now.Sub(last).Round(time.Minute)),
			})
			continue
		}
		out = append(out, ad)
	}
	return out, excluded
}
