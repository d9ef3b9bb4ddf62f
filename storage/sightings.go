package storage

import (
	"bytes"
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/varastohq/varasto/types"
)

// Sightings returns a resource's sighting history in ascending time
// order. limit <= 0 means all of it.
func (c *Catalog) Sightings(resourceID string, limit int) ([]types.ResourceSighting, error) {
	var out []types.ResourceSighting
	err := c.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(bucketSightings).Cursor()
		prefix := keyPrefix(resourceID)
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var s types.ResourceSighting
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// DriftEvents returns a resource's drift history in ascending time
// order. limit <= 0 means all of it.
func (c *Catalog) DriftEvents(resourceID string, limit int) ([]types.DriftEvent, error) {
	var out []types.DriftEvent
	err := c.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(bucketDrift).Cursor()
		prefix := keyPrefix(resourceID)
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var ev types.DriftEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			out = append(out, ev)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// deletePrefix removes every key under prefix from b.
func deletePrefix(b *bbolt.Bucket, prefix []byte) error {
	cur := b.Cursor()
	var doomed [][]byte
	for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
		doomed = append(doomed, bytes.Clone(k))
	}
	for _, k := range doomed {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
