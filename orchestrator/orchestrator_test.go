package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varastohq/varasto/journal"
	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/reconcile"
	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/taxonomy"
	"github.com/varastohq/varasto/types"
)

// simCollector is a scriptable collector. When gate is non-nil the
// stream stays open until gate closes or the run is canceled.
type simCollector struct {
	assets []types.DiscoveredAsset
	gate   chan struct{}
}

func (s *simCollector) Manifest() providers.Manifest          { return simManifest() }
func (s *simCollector) CheckConnection(context.Context) error { return nil }
func (s *simCollector) Topology(context.Context) ([]types.AssetEdge, error) {
	return nil, nil
}

func (s *simCollector) Collect(ctx context.Context, _ providers.Scope) (*providers.AssetStream, error) {
	stream := providers.NewAssetStream(len(s.assets) + 1)
	go func() {
		if s.gate != nil {
			select {
			case <-s.gate:
			case <-ctx.Done():
				stream.Close(ctx.Err())
				return
			}
		}
		for _, a := range s.assets {
			if err := stream.Send(ctx, a); err != nil {
				stream.Close(err)
				return
			}
		}
		stream.Close(nil)
	}()
	return stream, nil
}

func simManifest() providers.Manifest {
	return providers.Manifest{
		Vendor:                 "sim",
		ProviderType:           "lab",
		DisplayName:            "Simulated Lab",
		Version:                "0.0.1",
		SupportedResourceTypes: []string{"virtual_machine"},
	}
}

type harness struct {
	catalog      *storage.Catalog
	orchestrator *Orchestrator
	provider     types.Provider
	collector    *simCollector
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalog, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	h := &harness{catalog: catalog, collector: &simCollector{
		assets: []types.DiscoveredAsset{{
			NativeRef:         "vm-1",
			VendorType:        "VirtualMachine",
			Name:              "web-01",
			VendorIdentifiers: map[string]string{"moid": "vm-1"},
			State:             types.StateRunning,
		}},
	}}

	registry := providers.NewRegistry("", zerolog.Nop())
	require.NoError(t, registry.RegisterBuiltin(providers.Descriptor{
		Manifest: simManifest(),
		Factory: func(types.Provider, providers.Credential) (providers.Collector, error) {
			return h.collector, nil
		},
	}))
	require.NoError(t, registry.Discover(context.Background()))

	engine := reconcile.NewEngine(catalog, taxonomy.NewMapper(), zerolog.Nop())
	h.orchestrator = New(catalog, registry, engine, nil, nil, zerolog.Nop())

	h.provider = types.NewProvider("sim-lab", "sim", "lab")
	require.NoError(t, catalog.PutProvider(h.provider))
	return h
}

func TestStartCollectionCompletes(t *testing.T) {
	h := newHarness(t)

	run, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: h.provider.ID})
	require.NoError(t, err)
	assert.Equal(t, types.RunPending, run.Status)

	h.orchestrator.Wait()

	final, err := h.catalog.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, final.Status)
	assert.Equal(t, 1, final.ResourcesFound)
	assert.Equal(t, 1, final.ResourcesCreated)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)
	assert.Empty(t, final.ErrorMessage)

	p, err := h.catalog.GetProvider(h.provider.ID)
	require.NoError(t, err)
	assert.NotNil(t, p.LastRefreshAt)
}

func TestAdmissionAllowsExactlyOneRun(t *testing.T) {
	h := newHarness(t)
	h.collector.gate = make(chan struct{})

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		admitted  int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: h.provider.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, types.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected admission error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, attempts-1, conflicts)

	close(h.collector.gate)
	h.orchestrator.Wait()

	// The provider is free again once the run is terminal.
	_, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: h.provider.ID})
	require.NoError(t, err)
	h.orchestrator.Wait()
}

func TestDisabledProviderIsRejected(t *testing.T) {
	h := newHarness(t)
	h.provider.Enabled = false
	require.NoError(t, h.catalog.PutProvider(h.provider))

	_, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: h.provider.ID})
	assert.ErrorIs(t, err, types.ErrProviderDisabled)
}

func TestMissingPluginIsRejected(t *testing.T) {
	h := newHarness(t)
	orphan := types.NewProvider("mystery", "acme", "hypervisor")
	require.NoError(t, h.catalog.PutProvider(orphan))

	_, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: orphan.ID})
	assert.ErrorIs(t, err, types.ErrNoPlugin)
}

func TestUnknownProviderIsRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: "ghost"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCancelRunningRun(t *testing.T) {
	h := newHarness(t)
	h.collector.gate = make(chan struct{}) // never closed; only cancel releases it

	run, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: h.provider.ID})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := h.catalog.GetRun(run.ID)
		return err == nil && r.Status == types.RunRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.orchestrator.Cancel(run.ID))
	h.orchestrator.Wait()

	final, err := h.catalog.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCanceled, final.Status)
	assert.Empty(t, final.ErrorMessage, "cancellation is not an error")
}

func TestCancelBeforeFinalizeBeatsEngineSuccess(t *testing.T) {
	h := newHarness(t)

	run := types.NewCollectionRun(h.provider.ID, types.CollectionFull, nil)
	started := time.Now().UTC()
	run.Status = types.RunRunning
	run.StartedAt = &started
	require.NoError(t, h.catalog.CreateRun(run))

	handle := &runHandle{providerID: h.provider.ID, cancel: func() {}}
	h.orchestrator.handles[run.ID] = handle

	// Cancel lands in the window between the engine returning and the
	// worker finalizing: it is acknowledged against the live handle.
	require.NoError(t, h.orchestrator.Cancel(run.ID))

	// The engine returned success, but the acknowledged cancel wins.
	h.orchestrator.finalizeLocked(handle, run, h.provider, started, nil)

	final, err := h.catalog.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCanceled, final.Status)
	assert.Empty(t, final.ErrorMessage)
}

func TestCancelTerminalRunConflicts(t *testing.T) {
	h := newHarness(t)

	run, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: h.provider.ID})
	require.NoError(t, err)
	h.orchestrator.Wait()

	err = h.orchestrator.Cancel(run.ID)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestRunTimeoutFailsRun(t *testing.T) {
	h := newHarness(t)
	h.collector.gate = make(chan struct{}) // block past the timeout
	h.orchestrator.WithRunTimeout(50 * time.Millisecond)

	run, err := h.orchestrator.StartCollection(context.Background(), Request{ProviderID: h.provider.ID})
	require.NoError(t, err)
	h.orchestrator.Wait()

	final, err := h.catalog.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "timeout")
}

func TestRecoverOrphans(t *testing.T) {
	h := newHarness(t)

	orphan := types.NewCollectionRun(h.provider.ID, types.CollectionFull, nil)
	orphan.Status = types.RunRunning
	require.NoError(t, h.catalog.CreateRun(orphan))

	require.NoError(t, h.orchestrator.RecoverOrphans())

	final, err := h.catalog.GetRun(orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "restart")
}

func TestRecoverOrphansReplaysJournal(t *testing.T) {
	h := newHarness(t)

	jrnl, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = jrnl.Close() })
	h.orchestrator.journal = jrnl

	// A run the previous process left mid-flight: journaled as started,
	// still running in the catalog.
	orphan := types.NewCollectionRun(h.provider.ID, types.CollectionFull, nil)
	orphan.Status = types.RunRunning
	require.NoError(t, h.catalog.CreateRun(orphan))
	require.NoError(t, jrnl.Record(journal.EntryAdmitted, orphan.ID, h.provider.ID, nil))
	require.NoError(t, jrnl.Record(journal.EntryStarted, orphan.ID, h.provider.ID, nil))

	// A run that finished cleanly: its last journal event is terminal.
	now := time.Now().UTC()
	done := types.NewCollectionRun(h.provider.ID, types.CollectionFull, nil)
	done.Status = types.RunCompleted
	done.CompletedAt = &now
	require.NoError(t, h.catalog.CreateRun(done))
	require.NoError(t, jrnl.Record(journal.EntryAdmitted, done.ID, h.provider.ID, nil))
	require.NoError(t, jrnl.Record(journal.EntryCompleted, done.ID, h.provider.ID, nil))

	// A journaled run the catalog lost entirely must not break recovery.
	require.NoError(t, jrnl.Record(journal.EntryAdmitted, "ghost-run", h.provider.ID, nil))

	require.NoError(t, h.orchestrator.RecoverOrphans())

	final, err := h.catalog.GetRun(orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, final.Status)

	untouched, err := h.catalog.GetRun(done.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, untouched.Status)
}
