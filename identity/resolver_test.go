package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_PrefersHardwareUUID(t *testing.T) {
	canonical, normalized := Resolve(map[string]string{
		"moid":        "vm-1001",
		"instance_id": "i-0abc123",
		"bios_uuid":   "4202E71F-91A0-4C6D-B0FF-00AA00BB00CC",
	}, "virtual_machine")

	assert.Equal(t, "4202e71f-91a0-4c6d-b0ff-00aa00bb00cc", canonical)
	assert.Equal(t, "vm-1001", normalized["moid"])
	assert.Equal(t, "i-0abc123", normalized["instance_id"])
}

func TestResolve_FallsBackToInstanceThenManaged(t *testing.T) {
	canonical, _ := Resolve(map[string]string{
		"moid":        "vm-2002",
		"instance_id": "i-0def456",
	}, "virtual_machine")
	assert.Equal(t, "i-0def456", canonical)

	canonical, _ = Resolve(map[string]string{"moid": "host-42"}, "hypervisor_host")
	assert.Equal(t, "host-42", canonical)
}

func TestResolve_CasingCollapses(t *testing.T) {
	// Same machine reported by two providers with different formats.
	a, _ := Resolve(map[string]string{"smbios_uuid": "{EC2ABCDE-1234-5678-9ABC-DEF012345678}"}, "")
	b, _ := Resolve(map[string]string{"bios_uuid": "ec2abcde-1234-5678-9abc-def012345678"}, "")
	assert.Equal(t, a, b)
}

func TestResolve_Deterministic(t *testing.T) {
	ids := map[string]string{"custom_key": "X-1", "another": "Y-2"}
	first, _ := Resolve(ids, "")
	for i := 0; i < 10; i++ {
		again, _ := Resolve(ids, "")
		assert.Equal(t, first, again)
	}
}

func TestResolve_Empty(t *testing.T) {
	canonical, normalized := Resolve(nil, "")
	assert.Empty(t, canonical)
	assert.Empty(t, normalized)

	canonical, _ = Resolve(map[string]string{"moid": "   "}, "")
	assert.Empty(t, canonical)
}
