package models

import (
	"regexp"
	"time"
)

// Segment is the customer wealth bucket derived from account balance.
// Segments are ordered: low < mass < affluent < hnw.
type Segment string

const (
	SegmentLow      Segment = "low"
	SegmentMass     Segment = "mass"
	SegmentAffluent Segment = "affluent"
	SegmentHNW      Segment = "hnw"
)

// Valid reports whether s is one of the four known segments.
func (s Segment) Valid() bool {
	switch s {
	case SegmentLow, SegmentMass, SegmentAffluent, SegmentHNW:
		return true
	}
	return false
}

// Rank returns the position of s in the wealth ordering, for monotonicity
// checks. Unknown segments rank below low.
func (s Segment) Rank() int {
	switch s {
	case SegmentLow:
		return 0
	case SegmentMass:
		return 1
	case SegmentAffluent:
		return 2
	case SegmentHNW:
		return 3
	}
	return -1
}

// Channel is the surface an ad is delivered on.
type Channel string

const (
	ChannelATM    Channel = "ATM"
	ChannelMobile Channel = "mobile"
	ChannelWeb    Channel = "web"
	ChannelUSSD   Channel = "USSD"
)

// Valid reports whether c is one of the known delivery channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelATM, ChannelMobile, ChannelWeb, ChannelUSSD:
		return true
	}
	return false
}

// TimeSlot is a named wall-clock hour range.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"   // [06:00, 12:00)
	SlotAfternoon TimeSlot = "afternoon" // [12:00, 17:00)
	SlotEvening   TimeSlot = "evening"   // [17:00, 21:00)
	SlotNight     TimeSlot = "night"     // [21:00, 06:00)
)

// Valid reports whether ts is one of the known time slots.
func (ts TimeSlot) Valid() bool {
	switch ts {
	case SlotMorning, SlotAfternoon, SlotEvening, SlotNight:
		return true
	}
	return false
}

// SlotFor maps an instant to its time slot using the local wall-clock hour.
func SlotFor(now time.Time) TimeSlot {
	switch h := now.Hour(); {
	case h >= 6 && h < 12:
		return SlotMorning
	case h >= 12 && h < 17:
		return SlotAfternoon
	case h >= 17 && h < 21:
		return SlotEvening
	default:
		return SlotNight
	}
}

// SegmentThresholds are the balance cut-offs between adjacent segments.
// A balance below Low maps to low, below Mass to mass, below Affluent to
// affluent, anything else to hnw.
type SegmentThresholds struct {
	Low      float64
	Mass     float64
	Affluent float64
}

// DefaultSegmentThresholds matches the bank's standard wealth banding.
var DefaultSegmentThresholds = SegmentThresholds{
	Low:      50_000,
	Mass:     200_000,
	Affluent: 1_000_000,
}

// SegmentFor derives the wealth segment for a balance.
func (t SegmentThresholds) SegmentFor(balance float64) Segment {
	switch {
	case balance < t.Low:
		return SegmentLow
	case balance < t.Mass:
		return SegmentMass
	case balance < t.Affluent:
		return SegmentAffluent
	default:
		return SegmentHNW
	}
}

var customerIDSanitizer = regexp.MustCompile(`[:\s]`)

// SanitizeCustomerID makes a customer identifier safe for use inside
// colon-delimited cache keys by replacing colons and whitespace with
// underscores.
func SanitizeCustomerID(id string) string {
	return customerIDSanitizer.ReplaceAllString(id, "_")
}
