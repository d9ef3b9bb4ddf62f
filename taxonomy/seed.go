package taxonomy

// Built-in taxonomy. Mirrors the normalized resource hierarchy:
// category -> type -> per-vendor native names.

var seedCategories = []Category{
	{Slug: "compute", Name: "Compute"},
	{Slug: "storage", Name: "Storage"},
	{Slug: "networking", Name: "Networking"},
	{Slug: "containers", Name: "Containers"},
	{Slug: "other", Name: "Other"},
}

var seedTypes = []Type{
	{Slug: "virtual_machine", Name: "Virtual Machine", Category: "compute", Properties: []PropertyDefinition{
		{Name: "guest_os", Kind: "string", Description: "guest OS as reported by tools"},
		{Name: "tools_running", Kind: "bool"},
		{Name: "snapshot_count", Kind: "number"},
	}},
	{Slug: "hypervisor_host", Name: "Hypervisor Host", Category: "compute", Properties: []PropertyDefinition{
		{Name: "hypervisor_version", Kind: "string"},
		{Name: "maintenance_mode", Kind: "bool"},
	}},
	{Slug: "bare_metal", Name: "Bare Metal Server", Category: "compute"},
	{Slug: "compute_cluster", Name: "Compute Cluster", Category: "compute"},
	{Slug: "block_storage", Name: "Block Storage", Category: "storage"},
	{Slug: "object_storage", Name: "Object Storage", Category: "storage"},
	{Slug: "datastore", Name: "Datastore", Category: "storage"},
	{Slug: "network", Name: "Network", Category: "networking"},
	{Slug: "subnet", Name: "Subnet", Category: "networking"},
	{Slug: "load_balancer", Name: "Load Balancer", Category: "networking"},
	{Slug: "security_group", Name: "Security Group", Category: "networking"},
	{Slug: "container", Name: "Container", Category: "containers"},
	{Slug: "container_cluster", Name: "Container Cluster", Category: "containers"},
	{Slug: UnknownType, Name: "Unknown", Category: "other"},
}

var seedMappings = []VendorMapping{
	// VMware vSphere
	{Vendor: "vmware", VendorType: "VirtualMachine", Type: "virtual_machine"},
	{Vendor: "vmware", VendorType: "HostSystem", Type: "hypervisor_host"},
	{Vendor: "vmware", VendorType: "ClusterComputeResource", Type: "compute_cluster"},
	{Vendor: "vmware", VendorType: "Datastore", Type: "datastore"},
	{Vendor: "vmware", VendorType: "Network", Type: "network"},
	{Vendor: "vmware", VendorType: "DistributedVirtualPortgroup", Type: "network"},

	// AWS
	{Vendor: "aws", VendorType: "EC2 Instance", Type: "virtual_machine"},
	{Vendor: "aws", VendorType: "EBS Volume", Type: "block_storage"},
	{Vendor: "aws", VendorType: "S3 Bucket", Type: "object_storage"},
	{Vendor: "aws", VendorType: "VPC", Type: "network"},
	{Vendor: "aws", VendorType: "Subnet", Type: "subnet"},
	{Vendor: "aws", VendorType: "Security Group", Type: "security_group"},
	{Vendor: "aws", VendorType: "EKS Cluster", Type: "container_cluster"},

	// Azure
	{Vendor: "azure", VendorType: "Virtual Machine", Type: "virtual_machine"},
	{Vendor: "azure", VendorType: "Managed Disk", Type: "block_storage"},
	{Vendor: "azure", VendorType: "Virtual Network", Type: "network"},

	// Kubernetes-style container platforms
	{Vendor: "kubernetes", VendorType: "Pod", Type: "container"},
	{Vendor: "kubernetes", VendorType: "Node", Type: "hypervisor_host"},
	{Vendor: "kubernetes", VendorType: "Cluster", Type: "container_cluster"},

	// Static file provider declares canonical slugs directly.
	{Vendor: "static", VendorType: "virtual_machine", Type: "virtual_machine"},
	{Vendor: "static", VendorType: "hypervisor_host", Type: "hypervisor_host"},
	{Vendor: "static", VendorType: "compute_cluster", Type: "compute_cluster"},
	{Vendor: "static", VendorType: "datastore", Type: "datastore"},
	{Vendor: "static", VendorType: "network", Type: "network"},
	{Vendor: "static", VendorType: "block_storage", Type: "block_storage"},
	{Vendor: "static", VendorType: "container", Type: "container"},
}

func (m *Mapper) seed() {
	for _, c := range seedCategories {
		m.categories[c.Slug] = c
	}
	for _, t := range seedTypes {
		m.types[t.Slug] = t
	}
	for _, vm := range seedMappings {
		m.mappings[mappingKey(vm.Vendor, vm.VendorType)] = vm.Type
	}
}
