// Package storage implements the durable resource catalog on bbolt
// with an in-memory btree index for fast per-provider scans. It is the
// only place with cross-run shared mutable data; every create-or-update
// plus sighting append happens inside one bbolt transaction.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/varastohq/varasto/types"
)

// Bucket names in bbolt.
var (
	bucketProviders     = []byte("providers")
	bucketRuns          = []byte("runs")
	bucketResources     = []byte("resources")
	bucketResourceIndex = []byte("resource_index")
	bucketSightings     = []byte("sightings")
	bucketRelationships = []byte("relationships")
	bucketDrift         = []byte("drift")
)

// indexEntry orders resources by provider then resource ID in the
// in-memory btree.
type indexEntry struct {
	ProviderID string
	ResourceID string
}

func indexLess(a, b indexEntry) bool {
	if a.ProviderID != b.ProviderID {
		return a.ProviderID < b.ProviderID
	}
	return a.ResourceID < b.ResourceID
}

// Catalog is the durable store for providers, runs, resources,
// sightings, relationships and drift events.
type Catalog struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	index *btree.BTreeG[indexEntry]
}

// Open opens (or creates) the catalog database in dir.
func Open(dir string) (*Catalog, error) {
	dbPath := filepath.Join(dir, "varasto.db")

	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			bucketProviders, bucketRuns, bucketResources,
			bucketResourceIndex, bucketSightings, bucketRelationships, bucketDrift,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize buckets: %w", err)
	}

	c := &Catalog{
		db:    db,
		index: btree.NewG[indexEntry](32, indexLess),
	}
	if err := c.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// rebuildIndex loads the per-provider resource index from disk.
func (c *Catalog) rebuildIndex() error {
	return c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(_, v []byte) error {
			var r types.Resource
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt resource record: %w", err)
			}
			c.index.ReplaceOrInsert(indexEntry{ProviderID: r.ProviderID, ResourceID: r.ID})
			return nil
		})
	})
}

// Stats returns record counts for operational visibility.
func (c *Catalog) Stats() (providerCount, resourceCount, runCount int, err error) {
	err = c.db.View(func(tx *bbolt.Tx) error {
		providerCount = tx.Bucket(bucketProviders).Stats().KeyN
		resourceCount = tx.Bucket(bucketResources).Stats().KeyN
		runCount = tx.Bucket(bucketRuns).Stats().KeyN
		return nil
	})
	return
}

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
