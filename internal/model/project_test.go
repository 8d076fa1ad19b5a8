package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjustFirstIntention(t *testing.T) {
	s := ProjectStats{ProjectID: "p1"}

	next := s.Adjust(nil, IntentionDonor)

	assert.Equal(t, int64(1), next.Donors)
	assert.Equal(t, int64(0), next.Investors)
	assert.Equal(t, int64(0), next.Advertisers)
	// 值接收者：原值不变
	assert.Equal(t, int64(0), s.Donors)
}

func TestAdjustReplacesCategory(t *testing.T) {
	s := ProjectStats{ProjectID: "p1", Donors: 3, Investors: 1}

	prev := IntentionDonor
	next := s.Adjust(&prev, IntentionInvestor)

	assert.Equal(t, int64(2), next.Donors)
	assert.Equal(t, int64(2), next.Investors)
}

func TestAdjustFloorsDecrementAtZero(t *testing.T) {
	s := ProjectStats{ProjectID: "p1"}

	prev := IntentionAdvertiser
	next := s.Adjust(&prev, IntentionDonor)

	assert.Equal(t, int64(0), next.Advertisers, "decrement of a zero counter must clamp")
	assert.Equal(t, int64(1), next.Donors)
}

func TestEffectiveMergesLegacyCounters(t *testing.T) {
	s := ProjectStats{
		ProjectID:         "p1",
		Investors:         2,
		Donors:            5,
		Advertisers:       0,
		LegacyInvestors:   10,
		LegacyDonors:      1,
		LegacyAdvertisers: 4,
	}

	eff := s.Effective()

	assert.Equal(t, "p1", eff.ProjectID)
	assert.Equal(t, int64(12), eff.Investors)
	assert.Equal(t, int64(6), eff.Donors)
	assert.Equal(t, int64(4), eff.Advertisers)
}

func TestEffectiveZeroValue(t *testing.T) {
	eff := ProjectStats{ProjectID: "p1"}.Effective()

	assert.Equal(t, int64(0), eff.Investors)
	assert.Equal(t, int64(0), eff.Donors)
	assert.Equal(t, int64(0), eff.Advertisers)
}
