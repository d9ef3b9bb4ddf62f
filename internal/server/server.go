// Package server exposes the catalog and run lifecycle over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/varastohq/varasto/history"
	"github.com/varastohq/varasto/orchestrator"
	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/taxonomy"
	"github.com/varastohq/varasto/telemetry"
)

// Server serves the REST API.
type Server struct {
	addr         string
	catalog      *storage.Catalog
	registry     *providers.Registry
	orchestrator *orchestrator.Orchestrator
	history      *history.Service
	taxonomy     *taxonomy.Mapper
	logger       zerolog.Logger
}

// New builds the API server.
func New(addr string, catalog *storage.Catalog, registry *providers.Registry, orch *orchestrator.Orchestrator, hist *history.Service, mapper *taxonomy.Mapper, logger zerolog.Logger) *Server {
	return &Server{
		addr:         addr,
		catalog:      catalog,
		registry:     registry,
		orchestrator: orch,
		history:      hist,
		taxonomy:     mapper,
		logger:       logger.With().Str("component", "http").Logger(),
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	if telemetry.PrometheusRegistry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/providers", s.listProviders).Methods(http.MethodGet)
	api.HandleFunc("/providers", s.createProvider).Methods(http.MethodPost)
	api.HandleFunc("/providers/{id}", s.getProvider).Methods(http.MethodGet)
	api.HandleFunc("/providers/{id}", s.updateProvider).Methods(http.MethodPut)
	api.HandleFunc("/providers/{id}", s.deleteProvider).Methods(http.MethodDelete)
	api.HandleFunc("/providers/{id}/collect", s.startCollection).Methods(http.MethodPost)
	api.HandleFunc("/providers/{id}/test-connection", s.testConnection).Methods(http.MethodPost)
	api.HandleFunc("/providers/{id}/resources", s.listProviderResources).Methods(http.MethodGet)
	api.HandleFunc("/providers/{id}/relationships", s.listProviderRelationships).Methods(http.MethodGet)

	api.HandleFunc("/collection-runs", s.listRuns).Methods(http.MethodGet)
	api.HandleFunc("/collection-runs/{id}", s.getRun).Methods(http.MethodGet)
	api.HandleFunc("/collection-runs/{id}/cancel", s.cancelRun).Methods(http.MethodPost)

	api.HandleFunc("/resources/{id}", s.getResource).Methods(http.MethodGet)
	api.HandleFunc("/resources/{id}/history", s.resourceHistory).Methods(http.MethodGet)

	api.HandleFunc("/plugins", s.listPlugins).Methods(http.MethodGet)
	api.HandleFunc("/plugins/refresh", s.refreshPlugins).Methods(http.MethodPost)

	api.HandleFunc("/taxonomy/types", s.listTaxonomyTypes).Methods(http.MethodGet)

	return router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("http server shutdown")
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
