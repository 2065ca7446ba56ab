// Package prefetch maintains a metadata index of the destination bucket
// so per-object existence checks do not each cost a remote round trip.
package prefetch

import (
	"context"
	"sync"

	"buckethop/pkg/models"
	"buckethop/pkg/s3url"
	"buckethop/pkg/storage"
)

// Index maps relative object paths to destination metadata. Load bulk-fills
// it from one listing pass; Lookup falls back to a Head request (cached,
// including negative results) when the bulk load was skipped.
type Index struct {
	store  storage.ObjectStore
	bucket string
	prefix string

	mu      sync.RWMutex
	objects map[string]*models.ObjectDescriptor
	loaded  bool
	hits    int64
	misses  int64
}

// NewIndex creates an empty index over the destination bucket/prefix.
func NewIndex(store storage.ObjectStore, bucket, prefix string) *Index {
	return &Index{
		store:   store,
		bucket:  bucket,
		prefix:  prefix,
		objects: make(map[string]*models.ObjectDescriptor),
	}
}

// Load lists the whole destination prefix into the index.
func (ix *Index) Load(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	err := ix.store.List(ctx, ix.bucket, ix.prefix, func(desc models.ObjectDescriptor) error {
		d := desc
		ix.objects[s3url.RelativeKey(desc.Key, ix.prefix)] = &d
		return nil
	})
	if err != nil {
		return err
	}
	ix.loaded = true
	return nil
}

// Lookup resolves a relative path to destination metadata, nil when the
// object does not exist there.
func (ix *Index) Lookup(ctx context.Context, rel string) (*models.ObjectDescriptor, error) {
	ix.mu.RLock()
	desc, ok := ix.objects[rel]
	loaded := ix.loaded
	ix.mu.RUnlock()

	if ok {
		ix.mu.Lock()
		ix.hits++
		ix.mu.Unlock()
		return desc, nil
	}
	if loaded {
		// Bulk listing was authoritative; absence means absent.
		return nil, nil
	}

	head, err := ix.store.Head(ctx, ix.bucket, s3url.JoinKey(ix.prefix, rel))
	if err != nil {
		return nil, err
	}

	ix.mu.Lock()
	ix.misses++
	ix.objects[rel] = head
	ix.mu.Unlock()
	return head, nil
}

// Len returns the number of indexed objects.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.objects)
}

// Stats returns hit/miss counters for the Head fallback path.
func (ix *Index) Stats() (hits, misses int64) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.hits, ix.misses
}
