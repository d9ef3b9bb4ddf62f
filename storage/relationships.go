package storage

import (
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/varastohq/varasto/types"
)

// ReplaceRelationships swaps the provider's whole edge set. Topology is
// rebuilt per collection run, so the previous set is simply replaced;
// edges referencing resources outside the catalog were already dropped
// by the reconciler.
func (c *Catalog) ReplaceRelationships(providerID string, rels []types.ResourceRelationship) error {
	if rels == nil {
		rels = []types.ResourceRelationship{}
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketRelationships), []byte(providerID), rels)
	})
}

// Relationships returns the provider's current edge set.
func (c *Catalog) Relationships(providerID string) ([]types.ResourceRelationship, error) {
	var out []types.ResourceRelationship
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRelationships).Get([]byte(providerID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &out)
	})
	return out, err
}
