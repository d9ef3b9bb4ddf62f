package types

import "time"

// ResourceSighting is an immutable point-in-time observation of a
// resource captured during one collection run. Sightings record
// presence, not change: one is appended for every observation even when
// nothing on the resource moved.
type ResourceSighting struct {
	ResourceID string `json:"resource_id"`
	RunID      string `json:"run_id"`

	SeenAt time.Time `json:"seen_at"`

	State      ResourceState `json:"state"`
	PowerState string        `json:"power_state,omitempty"`

	CPUCount int `json:"cpu_count,omitempty"`
	MemoryMB int `json:"memory_mb,omitempty"`
	DiskGB   int `json:"disk_gb,omitempty"`

	// Metrics is the type-specific numeric snapshot reported by the
	// collector (cpu_usage_pct, iops, ...).
	Metrics map[string]float64 `json:"metrics,omitempty"`
}
