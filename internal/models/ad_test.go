package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAd() Ad {
	return Ad{
		ID:        "ad-1",
		Title:     "Premium savings",
		ImageURL:  "https://cdn.example.com/ad1.png",
		Segments:  []Segment{SegmentMass},
		Channels:  []Channel{ChannelATM},
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Status:    AdStatusActive,
		Priority:  1,
	}
}

func TestAdNormalizeDefaults(t *testing.T) {
	ad := Ad{Title: "t", ImageURL: "u"}
	ad.Normalize()

	assert.Equal(t, []Channel{ChannelATM}, ad.Channels)
	assert.Equal(t, 1.0, ad.Priority)
	assert.Equal(t, AdStatusActive, ad.Status)
}

func TestAdValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Ad)
		wantErr string
	}{
		{"valid", func(a *Ad) {}, ""},
		{"missing title", func(a *Ad) { a.Title = "" }, "title"},
		{"missing image", func(a *Ad) { a.ImageURL = "" }, "imageUrl"},
		{"no segments", func(a *Ad) { a.Segments = nil }, "segment"},
		{"unknown segment", func(a *Ad) { a.Segments = []Segment{"vip"} }, "unknown segment"},
		{"unknown channel", func(a *Ad) { a.Channels = []Channel{"tv"} }, "unknown channel"},
		{"unknown slot", func(a *Ad) { a.TimeSlots = []TimeSlot{"midnight"} }, "unknown time slot"},
		{"dates reversed", func(a *Ad) { a.StartDate, a.EndDate = a.EndDate, a.StartDate }, "endDate"},
		{"bad status", func(a *Ad) { a.Status = "paused" }, "unknown status"},
		{"negative clicks", func(a *Ad) { a.Clicks = -1 }, "non-negative"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ad := validAd()
			tc.mutate(&ad)
			err := ad.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestAdMatches(t *testing.T) {
	ad := validAd()
	during := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.True(t, ad.Matches(SegmentMass, ChannelATM, during))
	assert.False(t, ad.Matches(SegmentLow, ChannelATM, during))
	assert.False(t, ad.Matches(SegmentMass, ChannelWeb, during))
	assert.False(t, ad.Matches(SegmentMass, ChannelATM, during.AddDate(0, 2, 0)), "after end date")

	inactive := validAd()
	inactive.Status = AdStatusInactive
	assert.False(t, inactive.Matches(SegmentMass, ChannelATM, during))
}

func TestAdAllowsSlot(t *testing.T) {
	ad := validAd()
	assert.True(t, ad.AllowsSlot(SlotNight), "no restriction means all day")

	ad.TimeSlots = []TimeSlot{SlotMorning, SlotEvening}
	assert.True(t, ad.AllowsSlot(SlotMorning))
	assert.False(t, ad.AllowsSlot(SlotAfternoon))
}

func TestUserProfilePrune(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	p := NewUserProfile("C1")
	p.Impressions = []ImpressionRecord{
		{AdID: "a", Timestamp: now.Add(-25 * time.Hour)},
		{AdID: "b", Timestamp: now.Add(-23 * time.Hour)},
		{AdID: "c", Timestamp: now.Add(-time.Minute)},
	}
	p.Prune(now, 24*time.Hour)

	require.Len(t, p.Impressions, 2)
	for _, rec := range p.Impressions {
		assert.LessOrEqual(t, now.Sub(rec.Timestamp), 24*time.Hour)
	}
}

func TestUserProfileCountAndLastSeen(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	p := NewUserProfile("C1")
	p.Impressions = []ImpressionRecord{
		{AdID: "a", Timestamp: now.Add(-3 * time.Hour)},
		{AdID: "a", Timestamp: now.Add(-1 * time.Hour)},
		{AdID: "b", Timestamp: now.Add(-30 * time.Hour)},
	}

	assert.Equal(t, 2, p.CountFor("a", now.Add(-24*time.Hour)))
	assert.Equal(t, 0, p.CountFor("b", now.Add(-24*time.Hour)))
	assert.Equal(t, now.Add(-1*time.Hour), p.LastSeen("a"))
	assert.True(t, p.LastSeen("missing").IsZero())
}
