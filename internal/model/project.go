package model

import "time"

type Project struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectStats holds the per-project intention counters. The legacy_* fields
// are the pre-migration counter columns; they are read-only and merged into
// the current counters at the read boundary (see Effective). New adjustments
// only ever touch the current fields.
type ProjectStats struct {
	ProjectID   string `json:"project_id"`
	Investors   int64  `json:"investors"`
	Donors      int64  `json:"donors"`
	Advertisers int64  `json:"advertisers"`

	LegacyInvestors   int64 `json:"-"`
	LegacyDonors      int64 `json:"-"`
	LegacyAdvertisers int64 `json:"-"`

	// Version is the optimistic-concurrency token for the CAS write path.
	Version int64 `json:"-"`
}

// EffectiveStats is what clients see: current + legacy per category.
type EffectiveStats struct {
	ProjectID   string `json:"project_id"`
	Investors   int64  `json:"investors"`
	Donors      int64  `json:"donors"`
	Advertisers int64  `json:"advertisers"`
}

// Effective merges the legacy shadow counters into the current ones.
func (s ProjectStats) Effective() EffectiveStats {
	return EffectiveStats{
		ProjectID:   s.ProjectID,
		Investors:   s.Investors + s.LegacyInvestors,
		Donors:      s.Donors + s.LegacyDonors,
		Advertisers: s.Advertisers + s.LegacyAdvertisers,
	}
}

// Adjust applies one intention change to the counters: a floored decrement of
// the previous category (nil means no prior intention) followed by an
// increment of the new one. Decrements clamp at zero; a stale previous type
// may undercount but never drives a counter negative.
func (s ProjectStats) Adjust(previous *IntentionType, next IntentionType) ProjectStats {
	if previous != nil {
		c := s.counter(*previous)
		if *c > 0 {
			*c--
		}
	}
	*s.counter(next) = *s.counter(next) + 1
	return s
}

func (s *ProjectStats) counter(t IntentionType) *int64 {
	switch t {
	case IntentionInvestor:
		return &s.Investors
	case IntentionAdvertiser:
		return &s.Advertisers
	default:
		return &s.Donors
	}
}
