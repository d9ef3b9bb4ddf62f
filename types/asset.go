package types

// DiscoveredAsset is one remote object as reported by a collector,
// before taxonomy mapping and identity resolution. It is the contract
// between provider plugins and the reconciliation engine: plugins fill
// in what they can and never touch the catalog themselves.
type DiscoveredAsset struct {
	// NativeRef is the provider's unique reference for this object.
	// Required; assets without one are rejected.
	NativeRef string `json:"native_ref" yaml:"native_ref"`

	// VendorType is the vendor's raw type string, resolved to a
	// canonical type by the taxonomy mapper.
	VendorType string `json:"vendor_type" yaml:"vendor_type"`

	Name string `json:"name" yaml:"name"`

	// VendorIdentifiers are all vendor-native identifiers by kind,
	// e.g. {"moid": "vm-1001", "bios_uuid": "4202E71F-..."}.
	VendorIdentifiers map[string]string `json:"vendor_identifiers" yaml:"vendor_identifiers"`

	State      ResourceState `json:"state" yaml:"state"`
	PowerState string        `json:"power_state,omitempty" yaml:"power_state,omitempty"`

	Region           string `json:"region,omitempty" yaml:"region,omitempty"`
	AvailabilityZone string `json:"availability_zone,omitempty" yaml:"availability_zone,omitempty"`
	Tenant           string `json:"tenant,omitempty" yaml:"tenant,omitempty"`

	CPUCount int `json:"cpu_count,omitempty" yaml:"cpu_count,omitempty"`
	MemoryMB int `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
	DiskGB   int `json:"disk_gb,omitempty" yaml:"disk_gb,omitempty"`

	IPAddresses []string `json:"ip_addresses,omitempty" yaml:"ip_addresses,omitempty"`
	FQDN        string   `json:"fqdn,omitempty" yaml:"fqdn,omitempty"`
	OSType      string   `json:"os_type,omitempty" yaml:"os_type,omitempty"`
	OSName      string   `json:"os_name,omitempty" yaml:"os_name,omitempty"`

	Properties map[string]any    `json:"properties,omitempty" yaml:"properties,omitempty"`
	Tags       map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Metrics is the point-in-time numeric snapshot recorded on the
	// sighting, not on the resource.
	Metrics map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// AssetEdge is a relationship between two discovered assets, expressed
// in native references. The reconciliation engine translates refs to
// resource IDs and drops edges whose endpoints failed to reconcile.
type AssetEdge struct {
	SourceRef string           `json:"source_ref" yaml:"source_ref"`
	TargetRef string           `json:"target_ref" yaml:"target_ref"`
	Type      RelationshipType `json:"relationship_type" yaml:"relationship_type"`
}
