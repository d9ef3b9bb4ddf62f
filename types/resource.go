package types

import "time"

// ResourceState is the normalized lifecycle state for any resource.
type ResourceState string

const (
	StateActive       ResourceState = "active"
	StateRunning      ResourceState = "running"
	StateStopped      ResourceState = "stopped"
	StateSuspended    ResourceState = "suspended"
	StateProvisioning ResourceState = "provisioning"
	StateError        ResourceState = "error"
	StateUnknown      ResourceState = "unknown"
	// StateRetired marks a resource that a full collection no longer
	// observed. Retired resources are kept, never deleted by the engine.
	StateRetired ResourceState = "retired"
)

// Resource is a discovered infrastructure asset scoped to one provider.
//
// Identity works on two levels. NativeRef is the provider's own unique
// reference (vSphere MOID, instance ID) and is unique per provider.
// CanonicalID is the cross-provider fingerprint computed by the
// identity resolver; the same physical asset seen through two providers
// collapses onto one canonical ID.
type Resource struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`

	NativeRef         string            `json:"native_ref"`
	CanonicalID       string            `json:"canonical_id,omitempty"`
	VendorIdentifiers map[string]string `json:"vendor_identifiers,omitempty"`

	// ResourceType is the canonical taxonomy slug; VendorType the raw
	// vendor string before normalization.
	ResourceType string `json:"resource_type"`
	VendorType   string `json:"vendor_type,omitempty"`

	Name       string        `json:"name"`
	State      ResourceState `json:"state"`
	PowerState string        `json:"power_state,omitempty"`

	Region           string `json:"region,omitempty"`
	AvailabilityZone string `json:"availability_zone,omitempty"`
	Tenant           string `json:"tenant,omitempty"`

	CPUCount int `json:"cpu_count,omitempty"`
	MemoryMB int `json:"memory_mb,omitempty"`
	DiskGB   int `json:"disk_gb,omitempty"`

	IPAddresses []string `json:"ip_addresses,omitempty"`
	FQDN        string   `json:"fqdn,omitempty"`
	OSType      string   `json:"os_type,omitempty"`
	OSName      string   `json:"os_name,omitempty"`

	// Properties carries type-specific and vendor-specific attributes
	// that have no dedicated column.
	Properties map[string]any    `json:"properties,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`

	FirstDiscoveredAt time.Time `json:"first_discovered_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
	SeenCount         int       `json:"seen_count"`
	LastRunID         string    `json:"last_run_id,omitempty"`
}

// RelationshipType is the closed set of directed edge kinds between
// resources.
type RelationshipType string

const (
	RelRunsOn     RelationshipType = "runs_on"
	RelAttachedTo RelationshipType = "attached_to"
	RelMemberOf   RelationshipType = "member_of"
	RelPartOf     RelationshipType = "part_of"
	RelManages    RelationshipType = "manages"
)

// ValidRelationshipType reports whether t is in the closed set.
func ValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelRunsOn, RelAttachedTo, RelMemberOf, RelPartOf, RelManages:
		return true
	}
	return false
}

// ResourceRelationship is a directed edge between two cataloged
// resources. Edges are rebuilt per collection run from the collector's
// topology output, never patched incrementally.
type ResourceRelationship struct {
	SourceID string           `json:"source_id"`
	TargetID string           `json:"target_id"`
	Type     RelationshipType `json:"relationship_type"`
}
