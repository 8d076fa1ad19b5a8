package model

import (
	"fmt"
	"time"
)

// IntentionType is the closed set of ways a user can back a project.
type IntentionType string

const (
	IntentionInvestor   IntentionType = "investor"
	IntentionDonor      IntentionType = "donor"
	IntentionAdvertiser IntentionType = "advertiser"
)

// ParseIntentionType validates a raw string against the closed enumeration.
func ParseIntentionType(s string) (IntentionType, error) {
	switch IntentionType(s) {
	case IntentionInvestor, IntentionDonor, IntentionAdvertiser:
		return IntentionType(s), nil
	}
	return "", fmt.Errorf("unknown intention type %q", s)
}

// IntentionRecord is a user's single current intention toward a project.
// At most one record exists per (user, project) pair; recording a new one
// replaces the old, it never appends.
type IntentionRecord struct {
	ProjectID string        `json:"project_id"`
	UserID    string        `json:"user_id"`
	Type      IntentionType `json:"type"`
	CreatedAt time.Time     `json:"created_at"`
}
