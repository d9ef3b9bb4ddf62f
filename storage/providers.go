package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/varastohq/varasto/types"
)

// PutProvider creates or replaces a provider record.
func (c *Catalog) PutProvider(p types.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider has no ID")
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketProviders), []byte(p.ID), p)
	})
}

// GetProvider returns a provider by ID.
func (c *Catalog) GetProvider(id string) (types.Provider, error) {
	var p types.Provider
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProviders).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("provider %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	return p, err
}

// ListProviders returns all providers sorted by name.
func (c *Catalog) ListProviders() ([]types.Provider, error) {
	var out []types.Provider
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProviders).ForEach(func(_, v []byte) error {
			var p types.Provider
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindProviderByName returns a provider by display name.
func (c *Catalog) FindProviderByName(name string) (types.Provider, error) {
	all, err := c.ListProviders()
	if err != nil {
		return types.Provider{}, err
	}
	for _, p := range all {
		if p.Name == name {
			return p, nil
		}
	}
	return types.Provider{}, fmt.Errorf("provider %q: %w", name, types.ErrNotFound)
}

// DeleteProvider removes a provider and cascades to its resources,
// sightings, relationships, drift events and runs.
func (c *Catalog) DeleteProvider(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(tx *bbolt.Tx) error {
		providerBucket := tx.Bucket(bucketProviders)
		if providerBucket.Get([]byte(id)) == nil {
			return fmt.Errorf("provider %s: %w", id, types.ErrNotFound)
		}

		resources := tx.Bucket(bucketResources)
		var doomed []types.Resource
		if err := resources.ForEach(func(_, v []byte) error {
			var r types.Resource
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.ProviderID == id {
				doomed = append(doomed, r)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, r := range doomed {
			if err := c.deleteResourceTx(tx, r); err != nil {
				return err
			}
		}

		runs := tx.Bucket(bucketRuns)
		var runKeys [][]byte
		if err := runs.ForEach(func(k, v []byte) error {
			var run types.CollectionRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if run.ProviderID == id {
				runKeys = append(runKeys, bytes.Clone(k))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range runKeys {
			if err := runs.Delete(k); err != nil {
				return err
			}
		}

		if err := tx.Bucket(bucketRelationships).Delete([]byte(id)); err != nil {
			return err
		}
		return providerBucket.Delete([]byte(id))
	})
}
