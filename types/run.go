package types

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the collection run state machine.
// pending and running are non-terminal; the rest are terminal and
// immutable once reached.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// CollectionType selects how much of the provider is refreshed.
type CollectionType string

const (
	// CollectionFull refreshes everything and retires resources that
	// were not observed.
	CollectionFull CollectionType = "full"
	// CollectionIncremental refreshes only the targeted resource types
	// and never retires outside that scope.
	CollectionIncremental CollectionType = "incremental"
)

// CollectionRun tracks one discovery attempt against one provider.
// Created by the orchestrator's admission step, mutated only by the
// run's own worker, immutable once terminal.
type CollectionRun struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`

	CollectionType CollectionType `json:"collection_type"`

	// TargetResourceTypes limits the run to these type slugs.
	// Empty means all types the collector supports.
	TargetResourceTypes []string `json:"target_resource_types,omitempty"`

	Status RunStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ResourcesFound     int `json:"resources_found"`
	ResourcesCreated   int `json:"resources_created"`
	ResourcesUpdated   int `json:"resources_updated"`
	ResourcesRemoved   int `json:"resources_removed"`
	ResourcesUnchanged int `json:"resources_unchanged"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// IsTerminal reports whether the run has reached a final state.
func (r *CollectionRun) IsTerminal() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunCanceled:
		return true
	}
	return false
}

// TargetsType reports whether the run's scope includes the given type
// slug. An empty target list targets everything.
func (r *CollectionRun) TargetsType(slug string) bool {
	if len(r.TargetResourceTypes) == 0 {
		return true
	}
	for _, t := range r.TargetResourceTypes {
		if t == slug {
			return true
		}
	}
	return false
}

// NewCollectionRun creates a pending run for the given provider.
func NewCollectionRun(providerID string, ct CollectionType, targets []string) CollectionRun {
	return CollectionRun{
		ID:                  uuid.NewString(),
		ProviderID:          providerID,
		CollectionType:      ct,
		TargetResourceTypes: targets,
		Status:              RunPending,
		CreatedAt:           time.Now().UTC(),
	}
}
