package models

import "time"

// ImpressionRecord is one ad exposure inside a user profile.
type ImpressionRecord struct {
	AdID      string    `json:"adId"`
	Timestamp time.Time `json:"timestamp"`
}

// UserProfile is the ephemeral per-customer impression history kept in the
// KV store for frequency capping. An absent profile is equivalent to an
// empty one.
type UserProfile struct {
	CustomerID  string             `json:"customerId"`
	Impressions []ImpressionRecord `json:"impressions"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// NewUserProfile returns an empty profile for the given customer.
func NewUserProfile(customerID string) UserProfile {
	return UserProfile{CustomerID: customerID}
}

// Prune drops impression records older than window relative to now.
func (p *UserProfile) Prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := p.Impressions[:0]
	for _, rec := range p.Impressions {
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	p.Impressions = kept
}

// CountFor returns how many recorded impressions of adID fall after cutoff.
func (p *UserProfile) CountFor(adID string, cutoff time.Time) int {
	n := 0
	for _, rec := range p.Impressions {
		if rec.AdID == adID && rec.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// LastSeen returns the most recent impression timestamp for adID, or the
// zero time when the ad has never been shown to this customer.
func (p *UserProfile) LastSeen(adID string) time.Time {
	var last time.Time
	for _, rec := range p.Impressions {
		if rec.AdID == adID && rec.Timestamp.After(last) {
			last = rec.Timestamp
		}
	}
	return last
}
