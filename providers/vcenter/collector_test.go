package vcenter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/types"
)

// fakeAPI implements API in memory. listFailures makes the first N
// VirtualMachines calls fail to exercise retry.
type fakeAPI struct {
	vms      []VirtualMachine
	hosts    []HostSystem
	clusters []Cluster

	loginErr     error
	listFailures int
	vmCalls      int
	loggedOut    bool
}

func (f *fakeAPI) Login(context.Context) error  { return f.loginErr }
func (f *fakeAPI) Logout(context.Context) error { f.loggedOut = true; return nil }

func (f *fakeAPI) VirtualMachines(context.Context) ([]VirtualMachine, error) {
	f.vmCalls++
	if f.vmCalls <= f.listFailures {
		return nil, &apiError{status: 503, msg: "GET /api/vcenter/vm"}
	}
	return f.vms, nil
}
func (f *fakeAPI) Hosts(context.Context) ([]HostSystem, error)     { return f.hosts, nil }
func (f *fakeAPI) Clusters(context.Context) ([]Cluster, error)     { return f.clusters, nil }
func (f *fakeAPI) Datastores(context.Context) ([]Datastore, error) { return nil, nil }
func (f *fakeAPI) Networks(context.Context) ([]Network, error)     { return nil, nil }

func labAPI() *fakeAPI {
	return &fakeAPI{
		clusters: []Cluster{{Moid: "domain-c1", Name: "prod-cluster"}},
		hosts: []HostSystem{
			{Moid: "host-10", Name: "esx-10", SerialNumber: "SN-10", ClusterMoid: "domain-c1", CPUCount: 32, MemoryMB: 262144},
		},
		vms: []VirtualMachine{
			{
				Moid: "vm-100", Name: "web-01", InstanceUUID: "502e71fa-0001",
				BiosUUID: "4202E71F-0001", PowerState: "POWERED_ON",
				CPUCount: 4, MemoryMB: 8192, HostMoid: "host-10",
				DatastoreMoids: []string{"datastore-501"},
			},
		},
	}
}

func drain(t *testing.T, stream *providers.AssetStream) []types.DiscoveredAsset {
	t.Helper()
	var out []types.DiscoveredAsset
	for a := range stream.Assets() {
		out = append(out, a)
	}
	return out
}

func TestCollect_MapsManagedObjects(t *testing.T) {
	api := labAPI()
	c := NewWithAPI(api)

	stream, err := c.Collect(context.Background(), providers.Scope{})
	require.NoError(t, err)
	assets := drain(t, stream)
	require.NoError(t, stream.Err())

	require.Len(t, assets, 3) // cluster, host, vm
	byRef := map[string]types.DiscoveredAsset{}
	for _, a := range assets {
		byRef[a.NativeRef] = a
	}

	vm := byRef["vm-100"]
	assert.Equal(t, "VirtualMachine", vm.VendorType)
	assert.Equal(t, types.StateRunning, vm.State)
	assert.Equal(t, "4202E71F-0001", vm.VendorIdentifiers["bios_uuid"])

	host := byRef["host-10"]
	assert.Equal(t, "SN-10", host.VendorIdentifiers["serial_number"])

	edges, err := c.Topology(context.Background())
	require.NoError(t, err)
	assert.Contains(t, edges, types.AssetEdge{SourceRef: "vm-100", TargetRef: "host-10", Type: types.RelRunsOn})
	assert.Contains(t, edges, types.AssetEdge{SourceRef: "host-10", TargetRef: "domain-c1", Type: types.RelMemberOf})
	assert.True(t, api.loggedOut)
}

func TestCollect_ScopeLimitsKinds(t *testing.T) {
	c := NewWithAPI(labAPI())

	stream, err := c.Collect(context.Background(), providers.Scope{ResourceTypes: []string{"virtual_machine"}})
	require.NoError(t, err)
	assets := drain(t, stream)
	require.NoError(t, stream.Err())

	require.Len(t, assets, 1)
	assert.Equal(t, "vm-100", assets[0].NativeRef)
}

func TestCollect_RetriesTransientFaults(t *testing.T) {
	api := labAPI()
	api.listFailures = 2
	c := NewWithAPI(api)

	stream, err := c.Collect(context.Background(), providers.Scope{ResourceTypes: []string{"virtual_machine"}})
	require.NoError(t, err)
	assets := drain(t, stream)
	require.NoError(t, stream.Err())

	assert.Len(t, assets, 1)
	assert.Equal(t, 3, api.vmCalls)
}

func TestCollect_RetryExhaustionIsTerminal(t *testing.T) {
	api := labAPI()
	api.listFailures = maxListAttempts + 1
	c := NewWithAPI(api)

	stream, err := c.Collect(context.Background(), providers.Scope{ResourceTypes: []string{"virtual_machine"}})
	require.NoError(t, err)
	drain(t, stream)
	assert.Error(t, stream.Err())
}

func TestCheckConnection_AuthFailure(t *testing.T) {
	api := labAPI()
	api.loginErr = &apiError{status: 401, msg: "authentication failed"}
	c := NewWithAPI(api)

	assert.Error(t, c.CheckConnection(context.Background()))
}
