package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/varastohq/varasto/orchestrator"
	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/types"
)

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if _, _, _, err := s.catalog.Stats(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "catalog unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- providers ---

type providerRequest struct {
	Name             string               `json:"name"`
	Vendor           string               `json:"vendor"`
	ProviderType     string               `json:"provider_type"`
	Infrastructure   types.Infrastructure `json:"infrastructure"`
	Endpoint         string               `json:"endpoint"`
	CredentialRef    string               `json:"credential_ref"`
	Enabled          *bool                `json:"enabled"`
	ConnectionConfig map[string]string    `json:"connection_config"`
}

func (p providerRequest) validate() string {
	switch {
	case p.Name == "":
		return "name is required"
	case p.Vendor == "":
		return "vendor is required"
	case p.ProviderType == "":
		return "provider_type is required"
	}
	return ""
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	out, err := s.catalog.ListProviders()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) createProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}

	p := types.NewProvider(req.Name, req.Vendor, req.ProviderType)
	p.Infrastructure = req.Infrastructure
	p.Endpoint = req.Endpoint
	p.CredentialRef = req.CredentialRef
	p.ConnectionConfig = req.ConnectionConfig
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}

	if err := s.catalog.PutProvider(p); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetProvider(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetProvider(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req providerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}

	p.Name = req.Name
	p.Vendor = req.Vendor
	p.ProviderType = req.ProviderType
	p.Infrastructure = req.Infrastructure
	p.Endpoint = req.Endpoint
	p.CredentialRef = req.CredentialRef
	p.ConnectionConfig = req.ConnectionConfig
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}

	if err := s.catalog.PutProvider(p); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteProvider(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetProvider(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.registry.TestConnection(r.Context(), p); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) listProviderResources(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.catalog.GetProvider(id); err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.catalog.ListResourcesByProvider(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) listProviderRelationships(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.catalog.GetProvider(id); err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.catalog.Relationships(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if out == nil {
		out = []types.ResourceRelationship{}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// --- collection runs ---

type collectRequest struct {
	CollectionType      types.CollectionType `json:"collection_type"`
	TargetResourceTypes []string             `json:"target_resource_types"`
}

func (s *Server) startCollection(w http.ResponseWriter, r *http.Request) {
	req := collectRequest{}
	if r.ContentLength > 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}
	if req.CollectionType != "" &&
		req.CollectionType != types.CollectionFull &&
		req.CollectionType != types.CollectionIncremental {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "collection_type must be full or incremental"})
		return
	}

	run, err := s.orchestrator.StartCollection(r.Context(), orchestrator.Request{
		ProviderID:          mux.Vars(r)["id"],
		CollectionType:      req.CollectionType,
		TargetResourceTypes: req.TargetResourceTypes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	out, err := s.catalog.ListRuns(r.URL.Query().Get("provider_id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if out == nil {
		out = []types.CollectionRun{}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.catalog.GetRun(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orchestrator.Cancel(id); err != nil {
		s.writeError(w, err)
		return
	}
	run, err := s.catalog.GetRun(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, run)
}

// --- resources ---

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.catalog.GetResource(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) resourceHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	summary, err := s.history.ResourceHistory(mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// --- plugins and taxonomy ---

type pluginSummary struct {
	providers.Manifest
	ActiveProviders int `json:"active_providers"`
}

// pluginSummaries pairs each discovered manifest with how many enabled
// providers are bound to it.
func (s *Server) pluginSummaries() ([]pluginSummary, error) {
	all, err := s.catalog.ListProviders()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, p := range all {
		if p.Enabled {
			counts[p.PluginKey()]++
		}
	}

	manifests := s.registry.List()
	out := make([]pluginSummary, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, pluginSummary{Manifest: m, ActiveProviders: counts[m.Key()]})
	}
	return out, nil
}

func (s *Server) listPlugins(w http.ResponseWriter, _ *http.Request) {
	out, err := s.pluginSummaries()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) refreshPlugins(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Refresh(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.pluginSummaries()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) listTaxonomyTypes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.taxonomy.Types())
}
