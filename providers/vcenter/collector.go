package vcenter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/types"
)

// DriverName lets external manifests bind to this collector family.
const DriverName = "vcenter"

const (
	maxListAttempts = 4
	initialInterval = 500 * time.Millisecond
)

// Manifest describes the built-in vCenter plugin.
func Manifest() providers.Manifest {
	return providers.Manifest{
		Vendor:         "vmware",
		ProviderType:   "vcenter",
		DisplayName:    "VMware vCenter",
		Description:    "Collects virtual machines, hosts, clusters, datastores and networks from a vCenter endpoint.",
		Version:        "1.0.0",
		Infrastructure: string(types.InfraPrivateCloud),
		SupportedResourceTypes: []string{
			"virtual_machine", "hypervisor_host", "compute_cluster",
			"datastore", "network",
		},
		ConnectionParameters: []providers.ConnectionParameter{
			{Name: "username", Required: true},
			{Name: "password", Required: true, Secret: true},
			{Name: "insecure", Help: "Set to 'true' to use plain HTTP (lab setups only)."},
		},
	}
}

// Descriptor returns the built-in plugin descriptor.
func Descriptor() providers.Descriptor {
	return providers.Descriptor{Manifest: Manifest(), Factory: New}
}

// Collector collects one vCenter endpoint. Single-run: the topology
// edge set is accumulated during Collect and read by Topology.
type Collector struct {
	manifest providers.Manifest
	api      API

	mu    sync.Mutex
	edges []types.AssetEdge
}

// New builds a collector backed by the REST client.
func New(p types.Provider, cred providers.Credential) (providers.Collector, error) {
	if cred.Hostname == "" {
		return nil, fmt.Errorf("provider %s: endpoint is required", p.Name)
	}
	insecure := cred.Extra["insecure"] == "true"
	api := newRESTClient(cred.Hostname, cred.Port, cred.Username, cred.Password, insecure)
	return NewWithAPI(api), nil
}

// NewWithAPI builds a collector over an injected API implementation.
func NewWithAPI(api API) *Collector {
	return &Collector{manifest: Manifest(), api: api}
}

func (c *Collector) Manifest() providers.Manifest { return c.manifest }

// CheckConnection logs in and straight back out.
func (c *Collector) CheckConnection(ctx context.Context) error {
	if err := c.api.Login(ctx); err != nil {
		return fmt.Errorf("vcenter login: %w", err)
	}
	return c.api.Logout(ctx)
}

// Collect logs in and streams managed objects type by type. Transient
// API faults are retried with exponential backoff; exhaustion or an
// auth failure closes the stream with a terminal error.
func (c *Collector) Collect(ctx context.Context, scope providers.Scope) (*providers.AssetStream, error) {
	if err := c.api.Login(ctx); err != nil {
		return nil, fmt.Errorf("vcenter login: %w", err)
	}

	stream := providers.NewAssetStream(32)
	go func() {
		defer func() { _ = c.api.Logout(context.WithoutCancel(ctx)) }()
		stream.Close(c.collect(ctx, scope, stream))
	}()
	return stream, nil
}

func (c *Collector) collect(ctx context.Context, scope providers.Scope, stream *providers.AssetStream) error {
	steps := []struct {
		slug string
		fn   func(context.Context, *providers.AssetStream) error
	}{
		{"compute_cluster", c.collectClusters},
		{"hypervisor_host", c.collectHosts},
		{"datastore", c.collectDatastores},
		{"network", c.collectNetworks},
		{"virtual_machine", c.collectVMs},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scope.Includes(step.slug) {
			continue
		}
		if err := step.fn(ctx, stream); err != nil {
			return fmt.Errorf("collect %s: %w", step.slug, err)
		}
	}
	return nil
}

// listWithRetry wraps one inventory list call with bounded backoff.
func listWithRetry[T any](ctx context.Context, list func(context.Context) ([]T, error)) ([]T, error) {
	op := func() ([]T, error) {
		out, err := list(ctx)
		if err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && !apiErr.transient() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return out, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxListAttempts),
	)
}

func (c *Collector) collectVMs(ctx context.Context, stream *providers.AssetStream) error {
	vms, err := listWithRetry(ctx, c.api.VirtualMachines)
	if err != nil {
		return err
	}
	for _, vm := range vms {
		state := types.StateStopped
		power := "off"
		if vm.PowerState == "POWERED_ON" {
			state = types.StateRunning
			power = "on"
		} else if vm.PowerState == "SUSPENDED" {
			state = types.StateSuspended
			power = "suspended"
		}

		asset := types.DiscoveredAsset{
			NativeRef:  vm.Moid,
			VendorType: "VirtualMachine",
			Name:       vm.Name,
			VendorIdentifiers: map[string]string{
				"moid":          vm.Moid,
				"instance_uuid": vm.InstanceUUID,
				"bios_uuid":     vm.BiosUUID,
			},
			State:       state,
			PowerState:  power,
			CPUCount:    vm.CPUCount,
			MemoryMB:    vm.MemoryMB,
			DiskGB:      vm.DiskGB,
			IPAddresses: vm.IPAddresses,
			OSName:      vm.GuestOS,
			Properties: map[string]any{
				"guest_os": vm.GuestOS,
			},
		}
		if err := stream.Send(ctx, asset); err != nil {
			return err
		}

		c.addEdge(vm.Moid, vm.HostMoid, types.RelRunsOn)
		for _, ds := range vm.DatastoreMoids {
			c.addEdge(vm.Moid, ds, types.RelAttachedTo)
		}
		for _, net := range vm.NetworkMoids {
			c.addEdge(vm.Moid, net, types.RelMemberOf)
		}
	}
	return nil
}

func (c *Collector) collectHosts(ctx context.Context, stream *providers.AssetStream) error {
	hosts, err := listWithRetry(ctx, c.api.Hosts)
	if err != nil {
		return err
	}
	for _, h := range hosts {
		asset := types.DiscoveredAsset{
			NativeRef:  h.Moid,
			VendorType: "HostSystem",
			Name:       h.Name,
			VendorIdentifiers: map[string]string{
				"moid":          h.Moid,
				"serial_number": h.SerialNumber,
				"hardware_uuid": h.UUID,
			},
			State:      types.StateActive,
			PowerState: h.PowerState,
			CPUCount:   h.CPUCount,
			MemoryMB:   h.MemoryMB,
		}
		if err := stream.Send(ctx, asset); err != nil {
			return err
		}
		c.addEdge(h.Moid, h.ClusterMoid, types.RelMemberOf)
	}
	return nil
}

func (c *Collector) collectClusters(ctx context.Context, stream *providers.AssetStream) error {
	clusters, err := listWithRetry(ctx, c.api.Clusters)
	if err != nil {
		return err
	}
	for _, cl := range clusters {
		asset := types.DiscoveredAsset{
			NativeRef:         cl.Moid,
			VendorType:        "ClusterComputeResource",
			Name:              cl.Name,
			VendorIdentifiers: map[string]string{"moid": cl.Moid},
			State:             types.StateActive,
		}
		if err := stream.Send(ctx, asset); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) collectDatastores(ctx context.Context, stream *providers.AssetStream) error {
	stores, err := listWithRetry(ctx, c.api.Datastores)
	if err != nil {
		return err
	}
	for _, ds := range stores {
		asset := types.DiscoveredAsset{
			NativeRef:         ds.Moid,
			VendorType:        "Datastore",
			Name:              ds.Name,
			VendorIdentifiers: map[string]string{"moid": ds.Moid},
			State:             types.StateActive,
			DiskGB:            ds.CapacityGB,
			Metrics: map[string]float64{
				"free_gb": float64(ds.FreeGB),
			},
			Properties: map[string]any{
				"capacity_gb": strconv.Itoa(ds.CapacityGB),
			},
		}
		if err := stream.Send(ctx, asset); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) collectNetworks(ctx context.Context, stream *providers.AssetStream) error {
	nets, err := listWithRetry(ctx, c.api.Networks)
	if err != nil {
		return err
	}
	for _, n := range nets {
		asset := types.DiscoveredAsset{
			NativeRef:         n.Moid,
			VendorType:        "Network",
			Name:              n.Name,
			VendorIdentifiers: map[string]string{"moid": n.Moid},
			State:             types.StateActive,
		}
		if err := stream.Send(ctx, asset); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) addEdge(source, target string, rel types.RelationshipType) {
	if source == "" || target == "" {
		return
	}
	c.mu.Lock()
	c.edges = append(c.edges, types.AssetEdge{SourceRef: source, TargetRef: target, Type: rel})
	c.mu.Unlock()
}

// Topology returns the edges observed while collecting.
func (c *Collector) Topology(_ context.Context) ([]types.AssetEdge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.AssetEdge, len(c.edges))
	copy(out, c.edges)
	return out, nil
}
