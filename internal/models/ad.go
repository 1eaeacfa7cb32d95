package models

import (
	"fmt"
	"time"
)

// AdStatus is the lifecycle state of an ad.
type AdStatus string

const (
	AdStatusActive   AdStatus = "active"
	AdStatusInactive AdStatus = "inactive"
)

// Advertiser holds contact details for the party behind an ad.
type Advertiser struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contactEmail,omitempty"`
}

// Ad is the durable catalog record. Ads are created by the admin path and
// mutated by analytics increments and admin updates; they are never
// implicitly deleted.
type Ad struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	ImageURL    string      `json:"imageUrl"`
	VideoURL    string      `json:"videoUrl,omitempty"`
	CTA         string      `json:"cta,omitempty"`
	Segments    []Segment   `json:"segments"`
	Channels    []Channel   `json:"channels"`
	Locations   []string    `json:"locations,omitempty"`
	TimeSlots   []TimeSlot  `json:"timeSlots,omitempty"`
	StartDate   time.Time   `json:"startDate"`
	EndDate     time.Time   `json:"endDate"`
	Status      AdStatus    `json:"status"`
	Priority    float64     `json:"priority"`
	Impressions int64       `json:"impressions"`
	Clicks      int64       `json:"clicks"`
	Advertiser  *Advertiser `json:"advertiser,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Normalize fills in schema defaults: channels default to {ATM}, priority
// defaults to 1, status defaults to active.
func (a *Ad) Normalize() {
	if len(a.Channels) == 0 {
		a.Channels = []Channel{ChannelATM}
	}
	if a.Priority <= 0 {
		a.Priority = 1
	}
	if a.Status == "" {
		a.Status = AdStatusActive
	}
}

// Validate checks the invariants required before an ad may be persisted.
// Callers should Normalize first.
func (a *Ad) Validate() error {
	if a.Title == "" {
		return fmt.Errorf("title is required")
	}
	if a.ImageURL == "" {
		return fmt.Errorf("imageUrl is required")
	}
	if len(a.Segments) == 0 {
		return fmt.Errorf("at least one segment is required")
	}
	for _, s := range a.Segments {
		if !s.Valid() {
			return fmt.Errorf("unknown segment %q", s)
		}
	}
	for _, c := range a.Channels {
		if !c.Valid() {
			return fmt.Errorf("unknown channel %q", c)
		}
	}
	for _, ts := range a.TimeSlots {
		if !ts.Valid() {
			return fmt.Errorf("unknown time slot %q", ts)
		}
	}
	if a.StartDate.IsZero() || a.EndDate.IsZero() {
		return fmt.Errorf("startDate and endDate are required")
	}
	if a.EndDate.Before(a.StartDate) {
		return fmt.Errorf("endDate must not precede startDate")
	}
	if a.Status != AdStatusActive && a.Status != AdStatusInactive {
		return fmt.Errorf("unknown status %q", a.Status)
	}
	if a.Impressions < 0 || a.Clicks < 0 {
		return fmt.Errorf("impressions and clicks must be non-negative")
	}
	return nil
}

// Matches reports whether the ad targets the given segment and channel and
// is live at the given instant.
func (a *Ad) Matches(segment Segment, channel Channel, now time.Time) bool {
	if a.Status != AdStatusActive {
		return false
	}
	if now.Before(a.StartDate) || now.After(a.EndDate) {
		return false
	}
	return containsSegment(a.Segments, segment) && containsChannel(a.Channels, channel)
}

// AllowsSlot reports whether the ad may serve in the given time slot.
// An empty slot list means all-day delivery.
func (a *Ad) AllowsSlot(slot TimeSlot) bool {
	if len(a.TimeSlots) == 0 {
		return true
	}
	for _, ts := range a.TimeSlots {
		if ts == slot {
			return true
		}
	}
	return false
}

func containsSegment(in []Segment, s Segment) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}

func containsChannel(in []Channel, c Channel) bool {
	for _, v := range in {
		if v == c {
			return true
		}
	}
	return false
}
