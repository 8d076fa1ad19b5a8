package mq

import "time"

// Routing keys for the events exchange.
const (
	RoutingKeyIntentionRecorded = "intention.recorded"
)

// IntentionRecordedPayload is published after the intention index write
// commits. PreviousType is empty when this was the user's first intention
// for the project.
type IntentionRecordedPayload struct {
	ProjectID    string    `json:"project_id"`
	OwnerID      string    `json:"owner_id"`
	UserID       string    `json:"user_id"`
	Type         string    `json:"type"`
	PreviousType string    `json:"previous_type,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}
