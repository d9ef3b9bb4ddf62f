package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/varastohq/varasto/types"
)

// Index key kinds under resource_index. Every key is scoped by provider
// so identical serial numbers seen through two providers never collide.
const (
	indexRef       = "ref"
	indexCanonical = "canonical"
	indexIdent     = "ident"
)

func refKey(providerID, nativeRef string) []byte {
	return joinKey(providerID, indexRef, nativeRef)
}

func canonicalKey(providerID, canonicalID string) []byte {
	return joinKey(providerID, indexCanonical, canonicalID)
}

func identKey(providerID, kind, value string) []byte {
	return joinKey(providerID, indexIdent, kind, value)
}

// GetResource returns a resource by catalog ID.
func (c *Catalog) GetResource(id string) (types.Resource, error) {
	var r types.Resource
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketResources).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("resource %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &r)
	})
	return r, err
}

// FindResource locates an existing resource for an observation within
// one provider. Match order: canonical ID, then vendor identifiers in
// sorted kind order, then native ref. Returns found=false when nothing
// matches and the observation is a new resource.
func (c *Catalog) FindResource(providerID, canonicalID string, identifiers map[string]string, nativeRef string) (types.Resource, bool, error) {
	var r types.Resource
	found := false

	err := c.db.View(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketResourceIndex)

		lookup := func(key []byte) []byte {
			if id := idx.Get(key); id != nil {
				return tx.Bucket(bucketResources).Get(id)
			}
			return nil
		}

		var data []byte
		if canonicalID != "" {
			data = lookup(canonicalKey(providerID, canonicalID))
		}
		if data == nil && len(identifiers) > 0 {
			kinds := make([]string, 0, len(identifiers))
			for k := range identifiers {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				if identifiers[k] == "" {
					continue
				}
				if data = lookup(identKey(providerID, k, identifiers[k])); data != nil {
					break
				}
			}
		}
		if data == nil && nativeRef != "" {
			data = lookup(refKey(providerID, nativeRef))
		}
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &r)
	})
	return r, found, err
}

// SaveObservation persists one reconciled observation atomically: the
// resource upsert, its index entries, the sighting append, and any
// drift events all land in a single transaction.
func (c *Catalog) SaveObservation(prev *types.Resource, r types.Resource, s types.ResourceSighting, events []types.DriftEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(tx *bbolt.Tx) error {
		if prev != nil {
			if err := dropIndexTx(tx, *prev); err != nil {
				return err
			}
		}
		if err := put(tx.Bucket(bucketResources), []byte(r.ID), r); err != nil {
			return err
		}
		if err := addIndexTx(tx, r); err != nil {
			return err
		}

		sightingKey := prefixedTimeKey(s.ResourceID, s.SeenAt, s.RunID)
		if err := put(tx.Bucket(bucketSightings), sightingKey, s); err != nil {
			return err
		}

		drift := tx.Bucket(bucketDrift)
		for _, ev := range events {
			key := prefixedTimeKey(ev.ResourceID, ev.DetectedAt, ev.ID)
			if err := put(drift, key, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.index.ReplaceOrInsert(indexEntry{ProviderID: r.ProviderID, ResourceID: r.ID})
	return nil
}

// UpdateResourceRecord rewrites a resource and its index entries
// without touching sighting or drift history. Used when a run observes
// the same resource twice: the record takes the last write but the
// (resource, run) pair keeps a single sighting.
func (c *Catalog) UpdateResourceRecord(prev *types.Resource, r types.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(tx *bbolt.Tx) error {
		if prev != nil {
			if err := dropIndexTx(tx, *prev); err != nil {
				return err
			}
		}
		if err := put(tx.Bucket(bucketResources), []byte(r.ID), r); err != nil {
			return err
		}
		return addIndexTx(tx, r)
	})
	if err != nil {
		return err
	}

	c.index.ReplaceOrInsert(indexEntry{ProviderID: r.ProviderID, ResourceID: r.ID})
	return nil
}

// addIndexTx writes all index keys pointing at r. Identifier collisions
// are last-write-wins: the newest observation owns the key.
func addIndexTx(tx *bbolt.Tx, r types.Resource) error {
	idx := tx.Bucket(bucketResourceIndex)
	id := []byte(r.ID)

	if r.NativeRef != "" {
		if err := idx.Put(refKey(r.ProviderID, r.NativeRef), id); err != nil {
			return err
		}
	}
	if r.CanonicalID != "" {
		if err := idx.Put(canonicalKey(r.ProviderID, r.CanonicalID), id); err != nil {
			return err
		}
	}
	for kind, value := range r.VendorIdentifiers {
		if value == "" {
			continue
		}
		if err := idx.Put(identKey(r.ProviderID, kind, value), id); err != nil {
			return err
		}
	}
	return nil
}

// dropIndexTx removes r's index keys, but only those still owned by r:
// a key reassigned to another resource is left alone.
func dropIndexTx(tx *bbolt.Tx, r types.Resource) error {
	idx := tx.Bucket(bucketResourceIndex)
	drop := func(key []byte) error {
		if owner := idx.Get(key); owner != nil && string(owner) == r.ID {
			return idx.Delete(key)
		}
		return nil
	}

	if r.NativeRef != "" {
		if err := drop(refKey(r.ProviderID, r.NativeRef)); err != nil {
			return err
		}
	}
	if r.CanonicalID != "" {
		if err := drop(canonicalKey(r.ProviderID, r.CanonicalID)); err != nil {
			return err
		}
	}
	for kind, value := range r.VendorIdentifiers {
		if value == "" {
			continue
		}
		if err := drop(identKey(r.ProviderID, kind, value)); err != nil {
			return err
		}
	}
	return nil
}

// ListResourcesByProvider returns all of the provider's resources via
// the in-memory index, sorted by resource ID.
func (c *Catalog) ListResourcesByProvider(providerID string) ([]types.Resource, error) {
	c.mu.RLock()
	var ids []string
	c.index.AscendGreaterOrEqual(indexEntry{ProviderID: providerID}, func(e indexEntry) bool {
		if e.ProviderID != providerID {
			return false
		}
		ids = append(ids, e.ResourceID)
		return true
	})
	c.mu.RUnlock()

	out := make([]types.Resource, 0, len(ids))
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketResources)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var r types.Resource
			if err := json.Unmarshal(data, &r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// RetireResources marks the given resources retired and appends one
// disappeared drift event each, in a single transaction. Resources
// already retired are skipped. Returns how many were retired.
func (c *Catalog) RetireResources(resourceIDs []string, runID string) (int, error) {
	retired := 0
	err := c.db.Update(func(tx *bbolt.Tx) error {
		resources := tx.Bucket(bucketResources)
		drift := tx.Bucket(bucketDrift)

		for _, id := range resourceIDs {
			data := resources.Get([]byte(id))
			if data == nil {
				continue
			}
			var r types.Resource
			if err := json.Unmarshal(data, &r); err != nil {
				return err
			}
			if r.State == types.StateRetired {
				continue
			}

			ev := types.NewDriftEvent(r.ID, runID, types.DriftDisappeared, []types.FieldChange{
				{Field: "state", Previous: string(r.State), Current: string(types.StateRetired)},
			})
			r.State = types.StateRetired
			r.LastRunID = runID

			if err := put(resources, []byte(r.ID), r); err != nil {
				return err
			}
			if err := put(drift, prefixedTimeKey(ev.ResourceID, ev.DetectedAt, ev.ID), ev); err != nil {
				return err
			}
			retired++
		}
		return nil
	})
	return retired, err
}

// deleteResourceTx removes a resource with its index entries, sighting
// history and drift history. Caller holds c.mu.
func (c *Catalog) deleteResourceTx(tx *bbolt.Tx, r types.Resource) error {
	if err := dropIndexTx(tx, r); err != nil {
		return err
	}
	if err := deletePrefix(tx.Bucket(bucketSightings), keyPrefix(r.ID)); err != nil {
		return err
	}
	if err := deletePrefix(tx.Bucket(bucketDrift), keyPrefix(r.ID)); err != nil {
		return err
	}
	if err := tx.Bucket(bucketResources).Delete([]byte(r.ID)); err != nil {
		return err
	}
	c.index.Delete(indexEntry{ProviderID: r.ProviderID, ResourceID: r.ID})
	return nil
}
