package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varastohq/varasto/history"
	"github.com/varastohq/varasto/orchestrator"
	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/reconcile"
	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/taxonomy"
	"github.com/varastohq/varasto/types"
)

type stubCollector struct {
	assets []types.DiscoveredAsset
	gate   chan struct{}
}

func (c *stubCollector) Manifest() providers.Manifest          { return stubManifest() }
func (c *stubCollector) CheckConnection(context.Context) error { return nil }
func (c *stubCollector) Topology(context.Context) ([]types.AssetEdge, error) {
	return nil, nil
}

func (c *stubCollector) Collect(ctx context.Context, _ providers.Scope) (*providers.AssetStream, error) {
	stream := providers.NewAssetStream(len(c.assets) + 1)
	go func() {
		if c.gate != nil {
			select {
			case <-c.gate:
			case <-ctx.Done():
				stream.Close(ctx.Err())
				return
			}
		}
		for _, a := range c.assets {
			if err := stream.Send(ctx, a); err != nil {
				stream.Close(err)
				return
			}
		}
		stream.Close(nil)
	}()
	return stream, nil
}

func stubManifest() providers.Manifest {
	return providers.Manifest{
		Vendor:                 "sim",
		ProviderType:           "lab",
		DisplayName:            "Simulated Lab",
		Version:                "0.0.1",
		SupportedResourceTypes: []string{"virtual_machine"},
	}
}

type apiHarness struct {
	ts        *httptest.Server
	catalog   *storage.Catalog
	orch      *orchestrator.Orchestrator
	collector *stubCollector
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	catalog, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	h := &apiHarness{catalog: catalog, collector: &stubCollector{
		assets: []types.DiscoveredAsset{{
			NativeRef:         "vm-1",
			VendorType:        "VirtualMachine",
			Name:              "web-01",
			VendorIdentifiers: map[string]string{"moid": "vm-1"},
			State:             types.StateRunning,
			Metrics:           map[string]float64{"cpu_usage_pct": 12},
		}},
	}}

	registry := providers.NewRegistry("", zerolog.Nop())
	require.NoError(t, registry.RegisterBuiltin(providers.Descriptor{
		Manifest: stubManifest(),
		Factory: func(types.Provider, providers.Credential) (providers.Collector, error) {
			return h.collector, nil
		},
	}))
	require.NoError(t, registry.Discover(context.Background()))

	mapper := taxonomy.NewMapper()
	engine := reconcile.NewEngine(catalog, mapper, zerolog.Nop())
	h.orch = orchestrator.New(catalog, registry, engine, nil, nil, zerolog.Nop())

	srv := New(":0", catalog, registry, h.orch, history.NewService(catalog), mapper, zerolog.Nop())
	h.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(h.ts.Close)
	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.ts.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (h *apiHarness) createProvider(t *testing.T) types.Provider {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/v1/providers", map[string]any{
		"name":          "sim-lab",
		"vendor":        "sim",
		"provider_type": "lab",
		"endpoint":      "https://sim.lab:443",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[types.Provider](t, resp)
}

func TestProviderLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	p := h.createProvider(t)

	resp := h.do(t, http.MethodGet, "/api/v1/providers/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]types.Provider](t, resp), 1)

	resp = h.do(t, http.MethodDelete, "/api/v1/providers/"+p.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/v1/providers/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateProviderValidation(t *testing.T) {
	h := newAPIHarness(t)
	resp := h.do(t, http.MethodPost, "/api/v1/providers", map[string]any{"vendor": "sim"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCollectFlow(t *testing.T) {
	h := newAPIHarness(t)
	p := h.createProvider(t)

	resp := h.do(t, http.MethodPost, "/api/v1/providers/"+p.ID+"/collect", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	run := decodeBody[types.CollectionRun](t, resp)
	assert.Equal(t, types.RunPending, run.Status)

	h.orch.Wait()

	resp = h.do(t, http.MethodGet, "/api/v1/collection-runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	final := decodeBody[types.CollectionRun](t, resp)
	assert.Equal(t, types.RunCompleted, final.Status)
	assert.Equal(t, 1, final.ResourcesFound)

	resp = h.do(t, http.MethodGet, "/api/v1/providers/"+p.ID+"/resources", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resources := decodeBody[[]types.Resource](t, resp)
	require.Len(t, resources, 1)

	resp = h.do(t, http.MethodGet, "/api/v1/resources/"+resources[0].ID+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeBody[history.Summary](t, resp)
	assert.Len(t, summary.Sightings, 1)

	resp = h.do(t, http.MethodGet, "/api/v1/collection-runs?provider_id="+p.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]types.CollectionRun](t, resp), 1)
}

func TestConcurrentCollectConflicts(t *testing.T) {
	h := newAPIHarness(t)
	p := h.createProvider(t)
	h.collector.gate = make(chan struct{})

	resp := h.do(t, http.MethodPost, "/api/v1/providers/"+p.ID+"/collect", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	run := decodeBody[types.CollectionRun](t, resp)

	resp = h.do(t, http.MethodPost, "/api/v1/providers/"+p.ID+"/collect", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/collection-runs/"+run.ID+"/cancel", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	h.orch.Wait()

	// Cancel after terminal conflicts.
	resp = h.do(t, http.MethodPost, "/api/v1/collection-runs/"+run.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCollectRejectsBadCollectionType(t *testing.T) {
	h := newAPIHarness(t)
	p := h.createProvider(t)

	resp := h.do(t, http.MethodPost, "/api/v1/providers/"+p.ID+"/collect", map[string]any{
		"collection_type": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCollectDisabledProviderConflicts(t *testing.T) {
	h := newAPIHarness(t)
	p := h.createProvider(t)

	enabled := false
	resp := h.do(t, http.MethodPut, "/api/v1/providers/"+p.ID, map[string]any{
		"name":          p.Name,
		"vendor":        p.Vendor,
		"provider_type": p.ProviderType,
		"enabled":       &enabled,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/providers/"+p.ID+"/collect", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPluginsAndTaxonomyEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/api/v1/plugins", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plugins := decodeBody[[]pluginSummary](t, resp)
	require.Len(t, plugins, 1)
	assert.Equal(t, "sim:lab", plugins[0].Key())
	assert.Equal(t, 0, plugins[0].ActiveProviders)

	h.createProvider(t)
	resp = h.do(t, http.MethodGet, "/api/v1/plugins", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plugins = decodeBody[[]pluginSummary](t, resp)
	require.Len(t, plugins, 1)
	assert.Equal(t, 1, plugins[0].ActiveProviders)

	resp = h.do(t, http.MethodGet, "/api/v1/taxonomy/types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decodeBody[[]taxonomy.Type](t, resp))
}

func TestHealthEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
