// Package identity computes stable cross-provider fingerprints for
// discovered assets. Resolve is a pure function: no state, no I/O.
package identity

import "strings"

// Identifier kinds in descending order of stability. A hardware-backed
// SMBIOS UUID survives the same machine being observed by two different
// providers; an instance identifier survives re-collection by the same
// provider; a management-object ID is only unique inside one provider.
var (
	hardwareKinds = []string{"smbios_uuid", "bios_uuid", "hardware_uuid", "serial_number"}
	instanceKinds = []string{"instance_uuid", "instance_id", "vm_uuid", "uuid", "node_uuid"}
	managedKinds  = []string{"moid", "managed_object_id", "native_ref", "arn", "self_link"}
)

// Resolve picks a canonical ID from an asset's vendor identifiers and
// returns it along with the full identifier map in normalized form.
// Raw identifiers are never discarded: a later provider reporting the
// asset at a different stability tier can still be correlated.
//
// The empty string is returned when no identifier is usable; callers
// fall back to per-provider native-ref matching.
func Resolve(vendorIdentifiers map[string]string, typeHint string) (string, map[string]string) {
	normalized := make(map[string]string, len(vendorIdentifiers))
	for kind, value := range vendorIdentifiers {
		v := Normalize(value)
		if v != "" {
			normalized[strings.ToLower(strings.TrimSpace(kind))] = v
		}
	}

	for _, tier := range [][]string{hardwareKinds, instanceKinds, managedKinds} {
		for _, kind := range tier {
			if v, ok := normalized[kind]; ok {
				return v, normalized
			}
		}
	}

	// Unknown kinds only: pick deterministically so two runs over the
	// same asset agree.
	best := ""
	for kind := range normalized {
		if best == "" || kind < best {
			best = kind
		}
	}
	if best != "" {
		return normalized[best], normalized
	}
	return "", normalized
}

// Normalize canonicalizes an identifier's format so the same physical
// identifier reported with different casing or punctuation by different
// vendors collapses to one value. Lowercases, trims whitespace, and
// strips urn:uuid: prefixes and surrounding braces from UUID-shaped
// values.
func Normalize(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, "urn:uuid:")
	v = strings.TrimPrefix(v, "{")
	v = strings.TrimSuffix(v, "}")
	return v
}
