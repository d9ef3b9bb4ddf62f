// Package reconcile merges one collection run's discovered assets into
// the persistent resource catalog: create, update, retire, sighting per
// observation, relationship rebuild. It owns the run's counters but
// never its status transitions; those belong to the orchestrator.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/varastohq/varasto/identity"
	"github.com/varastohq/varasto/providers"
	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/taxonomy"
	"github.com/varastohq/varasto/types"
)

// Engine reconciles collector output against the catalog.
type Engine struct {
	catalog  *storage.Catalog
	taxonomy *taxonomy.Mapper
	logger   zerolog.Logger
}

// NewEngine builds a reconciliation engine.
func NewEngine(catalog *storage.Catalog, mapper *taxonomy.Mapper, logger zerolog.Logger) *Engine {
	return &Engine{
		catalog:  catalog,
		taxonomy: mapper,
		logger:   logger.With().Str("component", "reconcile").Logger(),
	}
}

// Execute drains the collector's stream into the catalog and fills in
// the run's counters. Returning an error means the run failed or was
// canceled; a partial collection (stream fault after some assets
// landed) completes with run.ErrorMessage set instead, and skips the
// retire and relationship-rebuild phases since absence can no longer be
// distinguished from not-yet-collected.
func (e *Engine) Execute(ctx context.Context, run *types.CollectionRun, provider types.Provider, collector providers.Collector) error {
	scope := providers.Scope{ResourceTypes: run.TargetResourceTypes}

	stream, err := collector.Collect(ctx, scope)
	if err != nil {
		return fmt.Errorf("start collection: %w", err)
	}

	seen := make(map[string]bool)     // resource IDs observed this pass
	refToID := make(map[string]string) // native ref -> resource ID, for topology

	for asset := range stream.Assets() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if asset.NativeRef == "" {
			return fmt.Errorf("collector reported an asset without a native ref: %w", types.ErrBadAsset)
		}

		resourceID, err := e.reconcileAsset(run, provider, asset, seen)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", asset.NativeRef, err)
		}
		refToID[asset.NativeRef] = resourceID
		if !seen[resourceID] {
			seen[resourceID] = true
			run.ResourcesFound++
		}
	}

	if streamErr := stream.Err(); streamErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if run.ResourcesFound == 0 {
			return fmt.Errorf("collection stream: %w", streamErr)
		}
		run.ErrorMessage = streamErr.Error()
		e.logger.Warn().Err(streamErr).
			Str("run_id", run.ID).
			Int("resources_found", run.ResourcesFound).
			Msg("collection ended early, keeping partial results")
		return nil
	}

	if run.CollectionType == types.CollectionFull {
		if err := e.retireMissing(run, provider, seen); err != nil {
			return fmt.Errorf("retire missing resources: %w", err)
		}
	}

	if err := e.rebuildRelationships(ctx, run, provider, collector, refToID); err != nil {
		return fmt.Errorf("rebuild relationships: %w", err)
	}
	return nil
}

// reconcileAsset runs one asset through taxonomy mapping, identity
// resolution and the create-or-update decision, then persists resource,
// sighting and drift atomically. Returns the catalog resource ID.
func (e *Engine) reconcileAsset(run *types.CollectionRun, provider types.Provider, asset types.DiscoveredAsset, seen map[string]bool) (string, error) {
	now := time.Now().UTC()

	canonicalType := e.taxonomy.Resolve(provider.Vendor, asset.VendorType)
	if canonicalType.Slug == taxonomy.UnknownType {
		e.logger.Debug().
			Str("vendor", provider.Vendor).
			Str("vendor_type", asset.VendorType).
			Msg("no taxonomy mapping, cataloging as unknown")
	}

	for _, issue := range e.taxonomy.CheckProperties(canonicalType.Slug, asset.Properties) {
		e.logger.Debug().
			Str("native_ref", asset.NativeRef).
			Str("resource_type", canonicalType.Slug).
			Msg(issue)
	}

	canonicalID, normalized := identity.Resolve(asset.VendorIdentifiers, canonicalType.Slug)

	prev, found, err := e.catalog.FindResource(provider.ID, canonicalID, normalized, asset.NativeRef)
	if err != nil {
		return "", err
	}

	// Two assets in one run resolving onto the same resource means
	// ambiguous identity in the collector output. Last write wins for
	// the record; the (resource, run) pair keeps one sighting and the
	// counters count the resource once.
	if found && seen[prev.ID] {
		e.logger.Warn().
			Str("run_id", run.ID).
			Str("resource_id", prev.ID).
			Str("native_ref", asset.NativeRef).
			Msg("duplicate observation of one resource in a single run")
		next := applyObservation(prev, asset, canonicalType.Slug, canonicalID, normalized, run.ID, now)
		next.SeenCount = prev.SeenCount
		if err := e.catalog.UpdateResourceRecord(&prev, next); err != nil {
			return "", err
		}
		return next.ID, nil
	}

	var (
		next   types.Resource
		events []types.DriftEvent
	)

	if !found {
		next = newResource(provider.ID, asset, canonicalType.Slug, canonicalID, normalized, run.ID, now)
		run.ResourcesCreated++
	} else {
		next = applyObservation(prev, asset, canonicalType.Slug, canonicalID, normalized, run.ID, now)
		changes := diff(prev, next)

		switch {
		case prev.State == types.StateRetired:
			events = append(events, types.NewDriftEvent(next.ID, run.ID, types.DriftRestored, changes))
			run.ResourcesUpdated++
		case len(changes) > 0:
			events = append(events, types.NewDriftEvent(next.ID, run.ID, types.DriftModified, changes))
			run.ResourcesUpdated++
		default:
			run.ResourcesUnchanged++
		}
	}

	sighting := types.ResourceSighting{
		ResourceID: next.ID,
		RunID:      run.ID,
		SeenAt:     now,
		State:      next.State,
		PowerState: next.PowerState,
		CPUCount:   next.CPUCount,
		MemoryMB:   next.MemoryMB,
		DiskGB:     next.DiskGB,
		Metrics:    asset.Metrics,
	}

	var prevPtr *types.Resource
	if found {
		prevPtr = &prev
	}
	if err := e.catalog.SaveObservation(prevPtr, next, sighting, events); err != nil {
		return "", err
	}
	return next.ID, nil
}

// newResource builds a first-sight resource record.
func newResource(providerID string, asset types.DiscoveredAsset, slug, canonicalID string, identifiers map[string]string, runID string, now time.Time) types.Resource {
	return types.Resource{
		ID:                uuid.NewString(),
		ProviderID:        providerID,
		NativeRef:         asset.NativeRef,
		CanonicalID:       canonicalID,
		VendorIdentifiers: identifiers,
		ResourceType:      slug,
		VendorType:        asset.VendorType,
		Name:              asset.Name,
		State:             normalizeState(asset.State),
		PowerState:        asset.PowerState,
		Region:            asset.Region,
		AvailabilityZone:  asset.AvailabilityZone,
		Tenant:            asset.Tenant,
		CPUCount:          asset.CPUCount,
		MemoryMB:          asset.MemoryMB,
		DiskGB:            asset.DiskGB,
		IPAddresses:       asset.IPAddresses,
		FQDN:              asset.FQDN,
		OSType:            asset.OSType,
		OSName:            asset.OSName,
		Properties:        asset.Properties,
		Tags:              asset.Tags,
		FirstDiscoveredAt: now,
		LastSeenAt:        now,
		SeenCount:         1,
		LastRunID:         runID,
	}
}

// applyObservation folds a new observation onto an existing resource.
// Tracking fields always advance; seen_count strictly increases.
func applyObservation(prev types.Resource, asset types.DiscoveredAsset, slug, canonicalID string, identifiers map[string]string, runID string, now time.Time) types.Resource {
	next := prev

	next.NativeRef = asset.NativeRef
	if canonicalID != "" {
		next.CanonicalID = canonicalID
	}
	if len(identifiers) > 0 {
		next.VendorIdentifiers = identifiers
	}
	next.ResourceType = slug
	next.VendorType = asset.VendorType
	next.Name = asset.Name
	next.State = normalizeState(asset.State)
	next.PowerState = asset.PowerState
	next.Region = asset.Region
	next.AvailabilityZone = asset.AvailabilityZone
	next.Tenant = asset.Tenant
	next.CPUCount = asset.CPUCount
	next.MemoryMB = asset.MemoryMB
	next.DiskGB = asset.DiskGB
	next.IPAddresses = asset.IPAddresses
	next.FQDN = asset.FQDN
	next.OSType = asset.OSType
	next.OSName = asset.OSName
	next.Properties = asset.Properties
	next.Tags = asset.Tags

	next.LastSeenAt = now
	next.SeenCount = prev.SeenCount + 1
	next.LastRunID = runID
	return next
}

func normalizeState(s types.ResourceState) types.ResourceState {
	if s == "" {
		return types.StateUnknown
	}
	return s
}

// retireMissing transitions resources in scope that this full pass did
// not observe. Incremental runs never reach here; a targeted full run
// only retires inside its target types.
func (e *Engine) retireMissing(run *types.CollectionRun, provider types.Provider, seen map[string]bool) error {
	existing, err := e.catalog.ListResourcesByProvider(provider.ID)
	if err != nil {
		return err
	}

	var missing []string
	for _, r := range existing {
		if seen[r.ID] || r.State == types.StateRetired {
			continue
		}
		if !run.TargetsType(r.ResourceType) {
			continue
		}
		missing = append(missing, r.ID)
	}
	if len(missing) == 0 {
		return nil
	}

	retired, err := e.catalog.RetireResources(missing, run.ID)
	if err != nil {
		return err
	}
	run.ResourcesRemoved += retired
	e.logger.Info().
		Str("run_id", run.ID).
		Int("retired", retired).
		Msg("retired resources missing from full collection")
	return nil
}

// rebuildRelationships rebuilds the provider's edge set from the
// collector's topology output, translating native refs to resource IDs
// and dropping edges whose endpoints did not reconcile this run. A
// targeted run only replaces edges inside its scope: prior edges with
// at least one endpoint outside the target types are kept, since the
// run never observed the topology around them.
func (e *Engine) rebuildRelationships(ctx context.Context, run *types.CollectionRun, provider types.Provider, collector providers.Collector, refToID map[string]string) error {
	edges, err := collector.Topology(ctx)
	if err != nil {
		return err
	}

	rels := make([]types.ResourceRelationship, 0, len(edges))
	seenEdge := make(map[string]bool)
	add := func(rel types.ResourceRelationship) {
		key := rel.SourceID + "\x00" + rel.TargetID + "\x00" + string(rel.Type)
		if !seenEdge[key] {
			seenEdge[key] = true
			rels = append(rels, rel)
		}
	}

	for _, edge := range edges {
		if !types.ValidRelationshipType(edge.Type) {
			e.logger.Warn().
				Str("run_id", run.ID).
				Str("relationship_type", string(edge.Type)).
				Msg("dropping edge with unknown relationship type")
			continue
		}
		sourceID, okSource := refToID[edge.SourceRef]
		targetID, okTarget := refToID[edge.TargetRef]
		if !okSource || !okTarget {
			continue
		}
		add(types.ResourceRelationship{
			SourceID: sourceID,
			TargetID: targetID,
			Type:     edge.Type,
		})
	}

	if len(run.TargetResourceTypes) > 0 {
		kept, err := e.edgesOutsideScope(run, provider)
		if err != nil {
			return err
		}
		for _, rel := range kept {
			add(rel)
		}
	}
	return e.catalog.ReplaceRelationships(provider.ID, rels)
}

// edgesOutsideScope returns the provider's existing edges a targeted
// run must not disturb: both endpoints still cataloged and at least one
// of them outside the run's target types. Edges fully inside the scope
// are superseded by this run's topology; edges with a vanished endpoint
// are dropped as dangling.
func (e *Engine) edgesOutsideScope(run *types.CollectionRun, provider types.Provider) ([]types.ResourceRelationship, error) {
	existing, err := e.catalog.Relationships(provider.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, nil
	}

	resources, err := e.catalog.ListResourcesByProvider(provider.ID)
	if err != nil {
		return nil, err
	}
	typeOf := make(map[string]string, len(resources))
	for _, r := range resources {
		typeOf[r.ID] = r.ResourceType
	}

	var kept []types.ResourceRelationship
	for _, rel := range existing {
		sourceType, okSource := typeOf[rel.SourceID]
		targetType, okTarget := typeOf[rel.TargetID]
		if !okSource || !okTarget {
			continue
		}
		if run.TargetsType(sourceType) && run.TargetsType(targetType) {
			continue
		}
		kept = append(kept, rel)
	}
	return kept, nil
}
