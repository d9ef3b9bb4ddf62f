package types

import (
	"time"

	"github.com/google/uuid"
)

// DriftType classifies what happened to a resource between two
// consecutive observations.
type DriftType string

const (
	// DriftModified means a semantically meaningful field changed.
	DriftModified DriftType = "modified"
	// DriftDisappeared means a full collection no longer observed the
	// resource and it was retired.
	DriftDisappeared DriftType = "disappeared"
	// DriftRestored means a previously retired resource came back.
	DriftRestored DriftType = "restored"
)

// FieldChange records one field moving from Previous to Current.
type FieldChange struct {
	Field    string `json:"field"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// DriftEvent is an immutable record of observed change, appended during
// reconciliation and kept for auditing.
type DriftEvent struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	RunID      string    `json:"run_id"`
	Type       DriftType `json:"drift_type"`
	DetectedAt time.Time `json:"detected_at"`

	Changes []FieldChange `json:"changes,omitempty"`
}

// NewDriftEvent creates a drift event with a fresh ID.
func NewDriftEvent(resourceID, runID string, dt DriftType, changes []FieldChange) DriftEvent {
	return DriftEvent{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		RunID:      runID,
		Type:       dt,
		DetectedAt: time.Now().UTC(),
		Changes:    changes,
	}
}
