package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSegmentForBoundaries(t *testing.T) {
	th := DefaultSegmentThresholds

	testCases := []struct {
		name     string
		balance  float64
		expected Segment
	}{
		{"zero balance", 0, SegmentLow},
		{"just under low cutoff", 49_999.99, SegmentLow},
		{"exactly low cutoff", 50_000, SegmentMass},
		{"mid mass", 120_000, SegmentMass},
		{"exactly mass cutoff", 200_000, SegmentAffluent},
		{"just under affluent cutoff", 999_999.99, SegmentAffluent},
		{"exactly affluent cutoff", 1_000_000, SegmentHNW},
		{"very large balance", 50_000_000, SegmentHNW},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, th.SegmentFor(tc.balance))
		})
	}
}

func TestSegmentMonotonicity(t *testing.T) {
	th := DefaultSegmentThresholds
	balances := []float64{0, 1, 49_999, 50_000, 100_000, 199_999, 200_000, 500_000, 999_999, 1_000_000, 2_000_000}
	for i := 1; i < len(balances); i++ {
		lo := th.SegmentFor(balances[i-1])
		hi := th.SegmentFor(balances[i])
		assert.LessOrEqual(t, lo.Rank(), hi.Rank(),
			"segment(%v)=%s must not outrank segment(%v)=%s", balances[i-1], lo, balances[i], hi)
	}
}

func TestSlotForBoundaries(t *testing.T) {
	testCases := []struct {
		hour     int
		expected TimeSlot
	}{
		{0, SlotNight},
		{5, SlotNight},
		{6, SlotMorning},
		{11, SlotMorning},
		{12, SlotAfternoon},
		{16, SlotAfternoon},
		{17, SlotEvening},
		{20, SlotEvening},
		{21, SlotNight},
		{23, SlotNight},
	}

	for _, tc := range testCases {
		now := time.Date(2025, 3, 10, tc.hour, 30, 0, 0, time.UTC)
		assert.Equal(t, tc.expected, SlotFor(now), "hour %d", tc.hour)
	}
}

func TestSanitizeCustomerID(t *testing.T) {
	assert.Equal(t, "C1", SanitizeCustomerID("C1"))
	assert.Equal(t, "a_b_c", SanitizeCustomerID("a:b:c"))
	assert.Equal(t, "cust_42_x", SanitizeCustomerID("cust 42\tx"))
	assert.Equal(t, "__", SanitizeCustomerID(": "))
}
