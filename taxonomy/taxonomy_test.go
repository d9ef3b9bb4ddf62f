package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_KnownVendorType(t *testing.T) {
	m := NewMapper()

	got := m.Resolve("vmware", "VirtualMachine")
	assert.Equal(t, "virtual_machine", got.Slug)
	assert.Equal(t, "compute", got.Category)

	got = m.Resolve("aws", "EC2 Instance")
	assert.Equal(t, "virtual_machine", got.Slug)
}

func TestResolve_UnmappedFallsToUnknown(t *testing.T) {
	m := NewMapper()

	got := m.Resolve("acme", "FrobulatorArray9000")
	assert.Equal(t, UnknownType, got.Slug)
}

func TestLoadFile_MergesOverSeed(t *testing.T) {
	m := NewMapper()

	path := filepath.Join(t.TempDir(), "taxonomy.yml")
	content := `
types:
  - slug: gpu_node
    name: GPU Node
    category: compute
mappings:
  - vendor: acme
    vendor_type: DGX
    type: gpu_node
  - vendor: acme
    vendor_type: FrobulatorVM
    type: virtual_machine
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, m.LoadFile(path))

	assert.Equal(t, "gpu_node", m.Resolve("acme", "DGX").Slug)
	assert.Equal(t, "virtual_machine", m.Resolve("acme", "FrobulatorVM").Slug)
	// Seed still intact.
	assert.Equal(t, "datastore", m.Resolve("vmware", "Datastore").Slug)
}

func TestCheckProperties(t *testing.T) {
	m := NewMapper()

	issues := m.CheckProperties("virtual_machine", map[string]any{
		"guest_os":       "ubuntu 22.04",
		"tools_running":  true,
		"snapshot_count": "three",
		"vram_mb":        128,
	})
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "snapshot_count")
	assert.Contains(t, issues[1], "vram_mb")

	// Types without declarations accept anything.
	assert.Empty(t, m.CheckProperties("datastore", map[string]any{"anything": 1}))
	assert.Empty(t, m.CheckProperties(UnknownType, map[string]any{"anything": 1}))
}

func TestLoadFile_RejectsDanglingMapping(t *testing.T) {
	m := NewMapper()

	path := filepath.Join(t.TempDir(), "bad.yml")
	content := `
mappings:
  - vendor: acme
    vendor_type: Thing
    type: does_not_exist
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	assert.Error(t, m.LoadFile(path))
}
