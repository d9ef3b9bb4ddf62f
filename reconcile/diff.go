package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/varastohq/varasto/types"
)

// diff lists semantically meaningful field changes between the stored
// resource and its freshly reconciled version. Metric snapshots live on
// sightings, not here, so metric noise never counts as a change and
// never inflates the run's updated counter.
func diff(prev, next types.Resource) []types.FieldChange {
	var changes []types.FieldChange

	add := func(field, before, after string) {
		if before != after {
			changes = append(changes, types.FieldChange{Field: field, Previous: before, Current: after})
		}
	}

	add("name", prev.Name, next.Name)
	add("state", string(prev.State), string(next.State))
	add("power_state", prev.PowerState, next.PowerState)
	add("resource_type", prev.ResourceType, next.ResourceType)
	add("region", prev.Region, next.Region)
	add("availability_zone", prev.AvailabilityZone, next.AvailabilityZone)
	add("tenant", prev.Tenant, next.Tenant)
	add("cpu_count", strconv.Itoa(prev.CPUCount), strconv.Itoa(next.CPUCount))
	add("memory_mb", strconv.Itoa(prev.MemoryMB), strconv.Itoa(next.MemoryMB))
	add("disk_gb", strconv.Itoa(prev.DiskGB), strconv.Itoa(next.DiskGB))
	add("fqdn", prev.FQDN, next.FQDN)
	add("os_type", prev.OSType, next.OSType)
	add("os_name", prev.OSName, next.OSName)
	add("ip_addresses", joinSorted(prev.IPAddresses), joinSorted(next.IPAddresses))
	add("tags", renderTags(prev.Tags), renderTags(next.Tags))
	add("properties", renderProperties(prev.Properties), renderProperties(next.Properties))

	return changes
}

func joinSorted(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func renderTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	return b.String()
}

func renderProperties(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, props[k])
	}
	return b.String()
}
