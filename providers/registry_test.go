package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varastohq/varasto/types"
)

func testManifest(vendor, ptype string) Manifest {
	return Manifest{
		Vendor:                 vendor,
		ProviderType:           ptype,
		DisplayName:            vendor + " " + ptype,
		Version:                "0.1.0",
		SupportedResourceTypes: []string{"virtual_machine"},
	}
}

type nopCollector struct{ manifest Manifest }

func (c *nopCollector) Manifest() Manifest                      { return c.manifest }
func (c *nopCollector) CheckConnection(context.Context) error   { return nil }
func (c *nopCollector) Collect(ctx context.Context, _ Scope) (*AssetStream, error) {
	s := NewAssetStream(0)
	s.Close(nil)
	return s, nil
}
func (c *nopCollector) Topology(context.Context) ([]types.AssetEdge, error) { return nil, nil }

func nopFactory(m Manifest) Factory {
	return func(types.Provider, Credential) (Collector, error) {
		return &nopCollector{manifest: m}, nil
	}
}

func TestRegistry_DiscoverAndLookup(t *testing.T) {
	r := NewRegistry("", zerolog.Nop())
	m := testManifest("vmware", "vcenter")
	require.NoError(t, r.RegisterBuiltin(Descriptor{Manifest: m, Factory: nopFactory(m)}))
	require.NoError(t, r.Discover(context.Background()))

	d, err := r.Lookup("vmware", "vcenter")
	require.NoError(t, err)
	assert.Equal(t, "vmware:vcenter", d.Manifest.Key())

	_, err = r.Lookup("acme", "nothing")
	assert.ErrorIs(t, err, types.ErrNoPlugin)
}

func TestRegistry_ExternalManifestBindsDriver(t *testing.T) {
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "acme_cloud")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	manifest := `
vendor: acme
provider_type: cloud
display_name: Acme Cloud
version: 1.2.0
driver: staticfile
supported_resource_types: [virtual_machine, network]
`
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "manifest.yml"), []byte(manifest), 0o644))

	r := NewRegistry(dir, zerolog.Nop())
	r.RegisterDriver("staticfile", nopFactory(testManifest("acme", "cloud")))
	require.NoError(t, r.Discover(context.Background()))

	d, err := r.Lookup("acme", "cloud")
	require.NoError(t, err)
	assert.Equal(t, "Acme Cloud", d.Manifest.DisplayName)
	assert.True(t, d.Manifest.SupportsType("network"))
}

func TestRegistry_UnknownDriverSkipped(t *testing.T) {
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "broken")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	manifest := `
vendor: broken
provider_type: thing
driver: no_such_driver
supported_resource_types: [virtual_machine]
`
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "manifest.yml"), []byte(manifest), 0o644))

	r := NewRegistry(dir, zerolog.Nop())
	require.NoError(t, r.Discover(context.Background()))

	_, err := r.Lookup("broken", "thing")
	assert.ErrorIs(t, err, types.ErrNoPlugin)
}

func TestRegistry_ConcurrentLookupDuringRefresh(t *testing.T) {
	r := NewRegistry("", zerolog.Nop())
	m := testManifest("vmware", "vcenter")
	require.NoError(t, r.RegisterBuiltin(Descriptor{Manifest: m, Factory: nopFactory(m)}))
	require.NoError(t, r.Discover(context.Background()))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = r.Refresh(context.Background())
		}
	}()

	// Lookups must never see a half-built registry: either the plugin
	// is found or, never, a panic/partial state.
	for i := 0; i < 1000; i++ {
		d, err := r.Lookup("vmware", "vcenter")
		require.NoError(t, err)
		require.NotNil(t, d.Factory)
	}
	close(stop)
	wg.Wait()
}

func TestResolveCredential(t *testing.T) {
	p := types.NewProvider("prod vcenter", "vmware", "vcenter")
	p.Endpoint = "https://vcenter.example.com:9443/sdk"
	p.ConnectionConfig = map[string]string{
		"username":   "svc-inventory",
		"password":   "hunter2",
		"datacenter": "dc-east",
	}

	cred := ResolveCredential(p)
	assert.Equal(t, "vcenter.example.com", cred.Hostname)
	assert.Equal(t, 9443, cred.Port)
	assert.Equal(t, "svc-inventory", cred.Username)
	assert.Equal(t, "dc-east", cred.Extra["datacenter"])
	_, leaked := cred.Extra["password"]
	assert.False(t, leaked)
}

func TestAssetStream_TerminalStatus(t *testing.T) {
	s := NewAssetStream(1)
	boom := errors.New("backend exploded")
	go func() {
		_ = s.Send(context.Background(), types.DiscoveredAsset{NativeRef: "vm-1"})
		s.Close(boom)
	}()

	var got []types.DiscoveredAsset
	for a := range s.Assets() {
		got = append(got, a)
	}
	assert.Len(t, got, 1)
	assert.ErrorIs(t, s.Err(), boom)
}
