package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/varastohq/varasto/types"
)

// CreateRun persists a new collection run. Admission (one non-terminal
// run per provider) is enforced by the orchestrator, not here.
func (c *Catalog) CreateRun(run types.CollectionRun) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketRuns), []byte(run.ID), run)
	})
}

// UpdateRun replaces a run record. Refuses to mutate a run that is
// already terminal on disk: terminal states are immutable.
func (c *Catalog) UpdateRun(run types.CollectionRun) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(run.ID))
		if data == nil {
			return fmt.Errorf("run %s: %w", run.ID, types.ErrNotFound)
		}
		var stored types.CollectionRun
		if err := json.Unmarshal(data, &stored); err != nil {
			return err
		}
		if stored.IsTerminal() {
			return fmt.Errorf("run %s is %s: %w", run.ID, stored.Status, types.ErrConflict)
		}
		return put(b, []byte(run.ID), run)
	})
}

// GetRun returns a run by ID.
func (c *Catalog) GetRun(id string) (types.CollectionRun, error) {
	var run types.CollectionRun
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}

// ListRuns returns runs newest-first, optionally filtered to one
// provider. limit <= 0 means no limit.
func (c *Catalog) ListRuns(providerID string, limit int) ([]types.CollectionRun, error) {
	var out []types.CollectionRun
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			var run types.CollectionRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if providerID != "" && run.ProviderID != providerID {
				return nil
			}
			out = append(out, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ActiveRun returns the provider's current non-terminal run, or
// ErrNotFound when there is none.
func (c *Catalog) ActiveRun(providerID string) (types.CollectionRun, error) {
	runs, err := c.NonTerminalRuns()
	if err != nil {
		return types.CollectionRun{}, err
	}
	for _, run := range runs {
		if run.ProviderID == providerID {
			return run, nil
		}
	}
	return types.CollectionRun{}, fmt.Errorf("no active run for provider %s: %w", providerID, types.ErrNotFound)
}

// NonTerminalRuns returns all pending and running runs. Used by
// admission and by orphan recovery at startup.
func (c *Catalog) NonTerminalRuns() ([]types.CollectionRun, error) {
	var out []types.CollectionRun
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			var run types.CollectionRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if !run.IsTerminal() {
				out = append(out, run)
			}
			return nil
		})
	})
	return out, err
}
