// Package staticfile implements a collector that reads a declared
// inventory from a YAML file. Used for demo environments, air-gapped
// imports, and as the driver behind file-based external plugins.
//
// Inventory assets must declare canonical taxonomy slugs in their
// vendor_type field (the built-in "static" vendor mappings pass them
// through 1:1). Scope filtering compares target slugs against
// vendor_type directly, so an inventory written with vendor-native
// type strings is never narrowed by a targeted run.
package staticfile

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/types"
)

// DriverName is the registry driver key external manifests bind to.
const DriverName = "staticfile"

// Manifest describes the built-in static file plugin.
func Manifest() providers.Manifest {
	return providers.Manifest{
		Vendor:       "static",
		ProviderType: "file",
		DisplayName:  "Static Inventory File",
		Description:  "Collects a declared inventory from a YAML file. Assets must declare canonical taxonomy slugs as their vendor_type; scope filtering matches those slugs.",
		Version:      "1.0.0",
		SupportedResourceTypes: []string{
			"virtual_machine", "hypervisor_host", "compute_cluster",
			"datastore", "network", "block_storage", "container",
		},
		ConnectionParameters: []providers.ConnectionParameter{
			{Name: "inventory_file", Required: true, Help: "Path to the inventory YAML file. Asset vendor_type values must be canonical taxonomy slugs."},
		},
	}
}

// Descriptor returns the built-in plugin descriptor.
func Descriptor() providers.Descriptor {
	return providers.Descriptor{Manifest: Manifest(), Factory: New}
}

// inventoryFile is the on-disk shape.
type inventoryFile struct {
	Assets []types.DiscoveredAsset `yaml:"assets"`
	Edges  []types.AssetEdge       `yaml:"edges"`
}

// Collector streams assets from one inventory file.
type Collector struct {
	manifest providers.Manifest
	path     string
}

// New builds a collector for the provider's configured inventory file.
func New(p types.Provider, cred providers.Credential) (providers.Collector, error) {
	path := p.ConnectionConfig["inventory_file"]
	if path == "" {
		path = cred.Extra["inventory_file"]
	}
	if path == "" {
		return nil, fmt.Errorf("provider %s: connection_config.inventory_file is required", p.Name)
	}
	m := Manifest()
	m.Vendor = p.Vendor
	m.ProviderType = p.ProviderType
	return &Collector{manifest: m, path: path}, nil
}

func (c *Collector) Manifest() providers.Manifest { return c.manifest }

// CheckConnection verifies the inventory file exists and parses.
func (c *Collector) CheckConnection(_ context.Context) error {
	_, err := c.load()
	return err
}

// Collect streams every asset in the file that matches the scope.
func (c *Collector) Collect(ctx context.Context, scope providers.Scope) (*providers.AssetStream, error) {
	inv, err := c.load()
	if err != nil {
		return nil, err
	}

	stream := providers.NewAssetStream(16)
	go func() {
		for _, asset := range inv.Assets {
			// Scope filtering happens on the raw vendor type: static
			// inventories declare canonical slugs directly.
			if !scope.Includes(asset.VendorType) {
				continue
			}
			if asset.NativeRef == "" {
				stream.Close(fmt.Errorf("asset %q has no native_ref", asset.Name))
				return
			}
			if err := stream.Send(ctx, asset); err != nil {
				stream.Close(err)
				return
			}
		}
		stream.Close(nil)
	}()
	return stream, nil
}

// Topology returns the file's declared edges.
func (c *Collector) Topology(_ context.Context) ([]types.AssetEdge, error) {
	inv, err := c.load()
	if err != nil {
		return nil, err
	}
	return inv.Edges, nil
}

func (c *Collector) load() (*inventoryFile, error) {
	data, err := os.ReadFile(c.path) // #nosec G304 -- operator-configured path
	if err != nil {
		return nil, fmt.Errorf("read inventory file: %w", err)
	}
	var inv inventoryFile
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory file %s: %w", c.path, err)
	}
	return &inv, nil
}
