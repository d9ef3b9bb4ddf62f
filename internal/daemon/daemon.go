// Package daemon assembles the service: storage, plugin registry,
// orchestrator, HTTP API and the periodic collection scheduler, run as
// one actor group with coordinated shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog"

	"github.com/varastohq/varasto/history"
	"github.com/varastohq/varasto/internal/config"
	"github.com/varastohq/varasto/internal/server"
	"github.com/varastohq/varasto/journal"
	"github.com/varastohq/varasto/orchestrator"
	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/providers/staticfile"
	"github.com/varastohq/varasto/providers/vcenter"
	"github.com/varastohq/varasto/reconcile"
	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/taxonomy"
	"github.com/varastohq/varasto/telemetry"
	"github.com/varastohq/varasto/types"
)

// journalRetention is how long run lifecycle journal files are kept
// before startup pruning removes them.
const journalRetention = 14 * 24 * time.Hour

// Daemon is the assembled service.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger

	catalog      *storage.Catalog
	registry     *providers.Registry
	orchestrator *orchestrator.Orchestrator
	server       *server.Server
	journal      *journal.Journal

	telemetryShutdown func(context.Context) error
}

// New wires the service from configuration.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Daemon, error) {
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	catalog, err := storage.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	jrnl, err := journal.Open(cfg.Storage.JournalDir)
	if err != nil {
		_ = catalog.Close()
		return nil, err
	}

	mapper := taxonomy.NewMapper()
	if cfg.Taxonomy.File != "" {
		if err := mapper.LoadFile(cfg.Taxonomy.File); err != nil {
			_ = catalog.Close()
			_ = jrnl.Close()
			return nil, err
		}
	}

	registry, err := BuildRegistry(ctx, cfg.Plugins.Dir, logger)
	if err != nil {
		_ = catalog.Close()
		_ = jrnl.Close()
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(telemetry.Meter)
	if err != nil {
		_ = catalog.Close()
		_ = jrnl.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	engine := reconcile.NewEngine(catalog, mapper, logger)
	orch := orchestrator.New(catalog, registry, engine, jrnl, metrics, logger).
		WithRunTimeout(cfg.Collection.RunTimeout)

	if err := orch.RecoverOrphans(); err != nil {
		_ = catalog.Close()
		_ = jrnl.Close()
		return nil, fmt.Errorf("recover orphaned runs: %w", err)
	}

	// Recovery has replayed everything it needs; prune journal files
	// past the retention window.
	if removed, err := journal.RemoveOld(cfg.Storage.JournalDir, journalRetention); err != nil {
		logger.Warn().Err(err).Msg("pruning old journal files")
	} else if removed > 0 {
		logger.Info().Int("files", removed).Msg("pruned old journal files")
	}

	srv := server.New(cfg.Server.Addr, catalog, registry, orch, history.NewService(catalog), mapper, logger)

	return &Daemon{
		cfg:               cfg,
		logger:            logger,
		catalog:           catalog,
		registry:          registry,
		orchestrator:      orch,
		server:            srv,
		journal:           jrnl,
		telemetryShutdown: telemetryShutdown,
	}, nil
}

// BuildRegistry registers the built-in collector families and runs
// initial discovery over the plugins directory. Shared with the CLI's
// one-shot commands.
func BuildRegistry(ctx context.Context, pluginsDir string, logger zerolog.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry(pluginsDir, logger)

	if err := registry.RegisterBuiltin(vcenter.Descriptor()); err != nil {
		return nil, err
	}
	if err := registry.RegisterBuiltin(staticfile.Descriptor()); err != nil {
		return nil, err
	}
	registry.RegisterDriver(vcenter.DriverName, vcenter.New)
	registry.RegisterDriver(staticfile.DriverName, staticfile.New)

	if err := registry.Discover(ctx); err != nil {
		return nil, fmt.Errorf("plugin discovery: %w", err)
	}
	return registry, nil
}

// Run serves until a signal arrives or an actor fails.
func (d *Daemon) Run(ctx context.Context) error {
	var group run.Group

	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	serverCtx, stopServer := context.WithCancel(context.Background())
	group.Add(
		func() error { return d.server.Run(serverCtx) },
		func(error) { stopServer() },
	)

	if d.cfg.Collection.Interval > 0 {
		schedCtx, stopSched := context.WithCancel(context.Background())
		group.Add(
			func() error { return d.schedule(schedCtx) },
			func(error) { stopSched() },
		)
	}

	err := group.Run()

	d.orchestrator.Wait()
	if closeErr := d.journal.Close(); closeErr != nil {
		d.logger.Error().Err(closeErr).Msg("close journal")
	}
	if closeErr := d.catalog.Close(); closeErr != nil {
		d.logger.Error().Err(closeErr).Msg("close catalog")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutErr := d.telemetryShutdown(shutdownCtx); shutErr != nil {
		d.logger.Error().Err(shutErr).Msg("telemetry shutdown")
	}

	var sig run.SignalError
	if errors.As(err, &sig) {
		d.logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

// schedule kicks off a full collection of every enabled provider on
// the configured interval. A provider with a run already in flight is
// skipped; the next tick retries it.
func (d *Daemon) schedule(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Collection.Interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.cfg.Collection.Interval).Msg("collection scheduler started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.collectAll(ctx)
		}
	}
}

func (d *Daemon) collectAll(ctx context.Context) {
	all, err := d.catalog.ListProviders()
	if err != nil {
		d.logger.Error().Err(err).Msg("scheduler could not list providers")
		return
	}

	for _, p := range all {
		if !p.Enabled {
			continue
		}
		_, err := d.orchestrator.StartCollection(ctx, orchestrator.Request{
			ProviderID:     p.ID,
			CollectionType: types.CollectionFull,
		})
		switch {
		case err == nil:
			d.logger.Info().Str("provider", p.Name).Msg("scheduled collection started")
		case errors.Is(err, types.ErrConflict):
			d.logger.Debug().Str("provider", p.Name).Msg("skipping provider with run in flight")
		case errors.Is(err, types.ErrNoPlugin):
			d.logger.Warn().Str("provider", p.Name).Msg("no plugin for provider, skipping")
		default:
			d.logger.Error().Err(err).Str("provider", p.Name).Msg("scheduled collection failed to start")
		}
	}
}
