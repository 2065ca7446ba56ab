package prefetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buckethop/pkg/storage"
)

func TestIndexBulkLoad(t *testing.T) {
	store := storage.NewMemStore()
	store.PutObject("dst", "backup/a.txt", []byte("hello"), time.Now())
	store.PutObject("dst", "backup/sub/b.txt", []byte("world"), time.Now())
	store.PutObject("dst", "other/c.txt", []byte("nope"), time.Now())

	ix := NewIndex(store, "dst", "backup/")
	require.NoError(t, ix.Load(context.Background()))
	assert.Equal(t, 2, ix.Len())

	desc, err := ix.Lookup(context.Background(), "a.txt")
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, int64(5), desc.Size)

	desc, err = ix.Lookup(context.Background(), "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, desc, "absence is authoritative after a bulk load")
}

func TestIndexHeadFallback(t *testing.T) {
	store := storage.NewMemStore()
	store.PutObject("dst", "a.txt", []byte("hello"), time.Now())

	ix := NewIndex(store, "dst", "")

	desc, err := ix.Lookup(context.Background(), "a.txt")
	require.NoError(t, err)
	require.NotNil(t, desc)

	// Second lookup is served from cache.
	_, err = ix.Lookup(context.Background(), "a.txt")
	require.NoError(t, err)
	hits, misses := ix.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	// Negative results are cached too.
	desc, err = ix.Lookup(context.Background(), "nope.txt")
	require.NoError(t, err)
	assert.Nil(t, desc)
	_, _ = ix.Lookup(context.Background(), "nope.txt")
	hits, _ = ix.Stats()
	assert.Equal(t, int64(2), hits)
}
