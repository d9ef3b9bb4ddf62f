// Package history aggregates a resource's sighting timeline into the
// shape the API serves: identity, tracking info, the ordered sightings,
// drift events and summary statistics.
package history

import (
	"sort"

	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/types"
)

// MetricSummary is min/avg/max over one numeric series.
type MetricSummary struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Avg     float64 `json:"avg"`
	Samples int     `json:"samples"`
}

// Summary is the full history view of one resource.
type Summary struct {
	Resource types.Resource `json:"resource"`

	Sightings []types.ResourceSighting `json:"sightings"`
	Drift     []types.DriftEvent       `json:"drift_events"`

	// DistinctStates lists every state ever observed, sorted.
	DistinctStates []string `json:"distinct_states"`

	// Metrics summarizes each numeric series across all sightings,
	// including the compute columns captured on every sighting.
	Metrics map[string]MetricSummary `json:"metrics"`
}

// Service reads history out of the catalog.
type Service struct {
	catalog *storage.Catalog
}

// NewService builds a history service.
func NewService(catalog *storage.Catalog) *Service {
	return &Service{catalog: catalog}
}

// ResourceHistory assembles the history summary for one resource.
// limit bounds the returned sighting timeline; statistics always cover
// the full history.
func (s *Service) ResourceHistory(resourceID string, limit int) (*Summary, error) {
	resource, err := s.catalog.GetResource(resourceID)
	if err != nil {
		return nil, err
	}

	sightings, err := s.catalog.Sightings(resourceID, 0)
	if err != nil {
		return nil, err
	}
	drift, err := s.catalog.DriftEvents(resourceID, 0)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Resource:       resource,
		Sightings:      sightings,
		Drift:          drift,
		DistinctStates: distinctStates(sightings),
		Metrics:        summarizeMetrics(sightings),
	}
	if limit > 0 && len(summary.Sightings) > limit {
		summary.Sightings = summary.Sightings[len(summary.Sightings)-limit:]
	}
	return summary, nil
}

func distinctStates(sightings []types.ResourceSighting) []string {
	seen := make(map[string]bool)
	for _, s := range sightings {
		if s.State != "" {
			seen[string(s.State)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for state := range seen {
		out = append(out, state)
	}
	sort.Strings(out)
	return out
}

func summarizeMetrics(sightings []types.ResourceSighting) map[string]MetricSummary {
	series := make(map[string][]float64)
	for _, s := range sightings {
		for name, value := range s.Metrics {
			series[name] = append(series[name], value)
		}
		if s.CPUCount > 0 {
			series["cpu_count"] = append(series["cpu_count"], float64(s.CPUCount))
		}
		if s.MemoryMB > 0 {
			series["memory_mb"] = append(series["memory_mb"], float64(s.MemoryMB))
		}
		if s.DiskGB > 0 {
			series["disk_gb"] = append(series["disk_gb"], float64(s.DiskGB))
		}
	}

	out := make(map[string]MetricSummary, len(series))
	for name, values := range series {
		summary := MetricSummary{Min: values[0], Max: values[0], Samples: len(values)}
		sum := 0.0
		for _, v := range values {
			if v < summary.Min {
				summary.Min = v
			}
			if v > summary.Max {
				summary.Max = v
			}
			sum += v
		}
		summary.Avg = sum / float64(len(values))
		out[name] = summary
	}
	return out
}
