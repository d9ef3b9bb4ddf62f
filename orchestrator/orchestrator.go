// Package orchestrator owns the collection run lifecycle: admission,
// dispatch, timeout, cancellation and finalization. Admission is the
// only cross-request mutual exclusion point in the service; everything
// after it runs as an independent worker per provider.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/varastohq/varasto/journal"
	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/reconcile"
	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/telemetry"
	"github.com/varastohq/varasto/types"
)

// DefaultRunTimeout bounds a single collection run.
const DefaultRunTimeout = 30 * time.Minute

// Request asks for one collection against one provider.
type Request struct {
	ProviderID          string
	CollectionType      types.CollectionType
	TargetResourceTypes []string
}

// runHandle tracks one in-flight run so Cancel can reach it.
type runHandle struct {
	providerID string
	cancel     context.CancelFunc

	mu       sync.Mutex
	canceled bool
}

func (h *runHandle) markCanceled() {
	h.mu.Lock()
	h.canceled = true
	h.mu.Unlock()
	h.cancel()
}

func (h *runHandle) wasCanceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled
}

// Orchestrator admits, dispatches and finalizes collection runs.
type Orchestrator struct {
	catalog  *storage.Catalog
	registry *providers.Registry
	engine   *reconcile.Engine
	journal  *journal.Journal
	metrics  *telemetry.Metrics
	logger   zerolog.Logger

	runTimeout time.Duration

	mu      sync.Mutex // admission + handle bookkeeping
	handles map[string]*runHandle
	wg      sync.WaitGroup
}

// New builds an orchestrator. journal and metrics may be nil.
func New(catalog *storage.Catalog, registry *providers.Registry, engine *reconcile.Engine, jrnl *journal.Journal, metrics *telemetry.Metrics, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		catalog:    catalog,
		registry:   registry,
		engine:     engine,
		journal:    jrnl,
		metrics:    metrics,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		runTimeout: DefaultRunTimeout,
		handles:    make(map[string]*runHandle),
	}
}

// WithRunTimeout overrides the per-run timeout.
func (o *Orchestrator) WithRunTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.runTimeout = d
	}
	return o
}

// StartCollection validates the request, admits the run and dispatches
// its worker. Admission holds the orchestrator lock so that checking
// for an existing non-terminal run and creating the new one is atomic:
// at most one non-terminal run per provider ever exists.
func (o *Orchestrator) StartCollection(ctx context.Context, req Request) (types.CollectionRun, error) {
	provider, err := o.catalog.GetProvider(req.ProviderID)
	if err != nil {
		return types.CollectionRun{}, err
	}
	if !provider.Enabled {
		return types.CollectionRun{}, fmt.Errorf("provider %s: %w", provider.Name, types.ErrProviderDisabled)
	}
	if _, err := o.registry.Lookup(provider.Vendor, provider.ProviderType); err != nil {
		return types.CollectionRun{}, err
	}

	ct := req.CollectionType
	if ct == "" {
		ct = types.CollectionFull
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if active, err := o.catalog.ActiveRun(provider.ID); err == nil {
		return types.CollectionRun{}, fmt.Errorf("run %s is still %s: %w", active.ID, active.Status, types.ErrConflict)
	} else if !errors.Is(err, types.ErrNotFound) {
		return types.CollectionRun{}, err
	}

	run := types.NewCollectionRun(provider.ID, ct, req.TargetResourceTypes)
	if err := o.catalog.CreateRun(run); err != nil {
		return types.CollectionRun{}, err
	}
	o.record(journal.EntryAdmitted, run, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{providerID: provider.ID, cancel: cancel}
	o.handles[run.ID] = handle

	o.wg.Add(1)
	go o.work(runCtx, handle, run, provider)

	o.logger.Info().
		Str("run_id", run.ID).
		Str("provider", provider.Name).
		Str("collection_type", string(ct)).
		Msg("collection run admitted")
	return run, nil
}

// Cancel requests cooperative cancellation of a run. Terminal runs
// return a conflict; the cancel of a non-terminal run always wins the
// race with its own completion because the worker finalizes under the
// orchestrator lock.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.catalog.GetRun(runID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return fmt.Errorf("run %s is already %s: %w", runID, run.Status, types.ErrConflict)
	}

	if handle, ok := o.handles[runID]; ok {
		handle.markCanceled()
		o.logger.Info().Str("run_id", runID).Msg("cancellation requested")
		return nil
	}

	// No worker owns it (left over from a crash): cancel directly.
	now := time.Now().UTC()
	run.Status = types.RunCanceled
	run.CompletedAt = &now
	if err := o.catalog.UpdateRun(run); err != nil {
		return err
	}
	o.record(journal.EntryCanceled, run, nil)
	return nil
}

// Wait blocks until all in-flight runs have finalized. Test and
// shutdown helper.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// RecoverOrphans fails every non-terminal run left behind by a previous
// process. The catalog scan is cross-checked against a journal replay:
// a run whose last journaled event is admitted or started but that the
// catalog no longer knows, or still shows non-terminal, surfaces here
// even after the catalog file was restored from an older copy. Called
// once at startup before the dispatcher accepts work.
func (o *Orchestrator) RecoverOrphans() error {
	orphans, err := o.catalog.NonTerminalRuns()
	if err != nil {
		return err
	}

	pending := make(map[string]types.CollectionRun, len(orphans))
	for _, run := range orphans {
		pending[run.ID] = run
	}

	if o.journal != nil {
		inflight := make(map[string]bool)
		err := o.journal.Replay(time.Time{}, func(e *journal.Entry) error {
			switch e.Type {
			case journal.EntryAdmitted, journal.EntryStarted:
				inflight[e.RunID] = true
			default:
				inflight[e.RunID] = false
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("replay journal: %w", err)
		}

		for id, open := range inflight {
			if !open {
				continue
			}
			if _, ok := pending[id]; ok {
				continue
			}
			run, err := o.catalog.GetRun(id)
			switch {
			case errors.Is(err, types.ErrNotFound):
				o.logger.Warn().Str("run_id", id).Msg("journaled run missing from catalog, skipping")
			case err != nil:
				return err
			case !run.IsTerminal():
				pending[id] = run
			}
		}
	}

	now := time.Now().UTC()
	for _, run := range pending {
		run.Status = types.RunFailed
		run.ErrorMessage = "interrupted by service restart"
		run.CompletedAt = &now
		if err := o.catalog.UpdateRun(run); err != nil {
			return fmt.Errorf("fail orphaned run %s: %w", run.ID, err)
		}
		o.record(journal.EntryOrphaned, run, errors.New(run.ErrorMessage))
		o.logger.Warn().Str("run_id", run.ID).Msg("failed orphaned run from previous process")
	}
	return nil
}

// work executes one admitted run to its terminal state.
func (o *Orchestrator) work(runCtx context.Context, handle *runHandle, run types.CollectionRun, provider types.Provider) {
	defer o.wg.Done()

	ctx, cancelTimeout := context.WithTimeout(runCtx, o.runTimeout)
	defer cancelTimeout()

	started := time.Now().UTC()
	run.Status = types.RunRunning
	run.StartedAt = &started
	if err := o.catalog.UpdateRun(run); err != nil {
		o.finalizeLocked(handle, run, provider, started, err)
		return
	}
	o.record(journal.EntryStarted, run, nil)
	o.metrics.RecordRunStart(ctx, provider.Name)

	var execErr error
	collector, err := o.registry.Instantiate(provider)
	if err != nil {
		execErr = err
	} else {
		execErr = o.engine.Execute(ctx, &run, provider, collector)
	}

	o.finalizeLocked(handle, run, provider, started, execErr)
}

// finalizeLocked records the terminal state under the orchestrator lock
// so Cancel never races a completing run.
func (o *Orchestrator) finalizeLocked(handle *runHandle, run types.CollectionRun, provider types.Provider, started time.Time, execErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer delete(o.handles, run.ID)

	now := time.Now().UTC()
	run.CompletedAt = &now

	switch {
	case handle.wasCanceled():
		// Cancellation is not an error; partial progress stays. Checked
		// before the success case: an acknowledged Cancel must land the
		// run in canceled even when the engine finished first.
		run.Status = types.RunCanceled
		run.ErrorMessage = ""
	case execErr == nil:
		run.Status = types.RunCompleted
	case errors.Is(execErr, context.DeadlineExceeded):
		run.Status = types.RunFailed
		run.ErrorMessage = fmt.Sprintf("run exceeded timeout of %s", o.runTimeout)
	default:
		run.Status = types.RunFailed
		run.ErrorMessage = execErr.Error()
	}

	if err := o.catalog.UpdateRun(run); err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to persist terminal run state")
	}

	switch run.Status {
	case types.RunCompleted:
		o.record(journal.EntryCompleted, run, nil)
		provider.LastRefreshAt = &now
		if err := o.catalog.PutProvider(provider); err != nil {
			o.logger.Error().Err(err).Str("provider", provider.Name).Msg("failed to stamp provider refresh time")
		}
	case types.RunCanceled:
		o.record(journal.EntryCanceled, run, nil)
	default:
		o.record(journal.EntryFailed, run, execErr)
	}

	ctx := context.Background()
	o.metrics.RecordRunEnd(ctx, provider.Name, run, now.Sub(started))
	if _, resources, _, err := o.catalog.Stats(); err == nil {
		o.metrics.RecordCatalogSize(ctx, resources)
	}

	o.logger.Info().
		Str("run_id", run.ID).
		Str("provider", provider.Name).
		Str("status", string(run.Status)).
		Int("found", run.ResourcesFound).
		Int("created", run.ResourcesCreated).
		Int("updated", run.ResourcesUpdated).
		Int("removed", run.ResourcesRemoved).
		Dur("duration", now.Sub(started)).
		Msg("collection run finished")
}

// record journals a run lifecycle event when a journal is configured.
func (o *Orchestrator) record(t journal.EntryType, run types.CollectionRun, cause error) {
	if o.journal == nil {
		return
	}
	payload := map[string]any{
		"status":          string(run.Status),
		"collection_type": string(run.CollectionType),
	}
	var err error
	if cause != nil {
		err = o.journal.RecordError(t, run.ID, run.ProviderID, payload, cause)
	} else {
		err = o.journal.Record(t, run.ID, run.ProviderID, payload)
	}
	if err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("journal append failed")
	}
}
