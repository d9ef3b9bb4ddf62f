package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/types"
)

func seedResource(t *testing.T, catalog *storage.Catalog) types.Resource {
	t.Helper()
	now := time.Now().UTC()
	r := types.Resource{
		ID:                "res-1",
		ProviderID:        "prov-1",
		NativeRef:         "vm-1",
		ResourceType:      "virtual_machine",
		Name:              "web-01",
		State:             types.StateRunning,
		FirstDiscoveredAt: now,
		LastSeenAt:        now,
		SeenCount:         1,
	}

	base := now.Add(-3 * time.Hour)
	observations := []struct {
		state types.ResourceState
		cpu   int
		usage float64
	}{
		{types.StateRunning, 2, 10},
		{types.StateStopped, 2, 0},
		{types.StateRunning, 4, 80},
	}
	for i, obs := range observations {
		s := types.ResourceSighting{
			ResourceID: r.ID,
			RunID:      "run",
			SeenAt:     base.Add(time.Duration(i) * time.Hour),
			State:      obs.state,
			CPUCount:   obs.cpu,
			Metrics:    map[string]float64{"cpu_usage_pct": obs.usage},
		}
		var prev *types.Resource
		if i > 0 {
			prev = &r
		}
		require.NoError(t, catalog.SaveObservation(prev, r, s, nil))
	}
	return r
}

func TestResourceHistory(t *testing.T) {
	catalog, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer catalog.Close()

	r := seedResource(t, catalog)
	svc := NewService(catalog)

	summary, err := svc.ResourceHistory(r.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, r.ID, summary.Resource.ID)
	require.Len(t, summary.Sightings, 3)
	assert.True(t, summary.Sightings[0].SeenAt.Before(summary.Sightings[2].SeenAt))

	assert.Equal(t, []string{"running", "stopped"}, summary.DistinctStates)

	usage := summary.Metrics["cpu_usage_pct"]
	assert.Equal(t, 0.0, usage.Min)
	assert.Equal(t, 80.0, usage.Max)
	assert.InDelta(t, 30.0, usage.Avg, 0.001)
	assert.Equal(t, 3, usage.Samples)

	cpu := summary.Metrics["cpu_count"]
	assert.Equal(t, 2.0, cpu.Min)
	assert.Equal(t, 4.0, cpu.Max)
}

func TestResourceHistoryLimitKeepsNewest(t *testing.T) {
	catalog, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer catalog.Close()

	r := seedResource(t, catalog)
	svc := NewService(catalog)

	summary, err := svc.ResourceHistory(r.ID, 2)
	require.NoError(t, err)
	require.Len(t, summary.Sightings, 2)
	assert.Equal(t, types.StateRunning, summary.Sightings[1].State)
	// Statistics still cover all sightings.
	assert.Equal(t, 3, summary.Metrics["cpu_usage_pct"].Samples)
}

func TestResourceHistoryUnknownResource(t *testing.T) {
	catalog, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer catalog.Close()

	_, err = NewService(catalog).ResourceHistory("ghost", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
