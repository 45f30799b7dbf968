package collection

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akidb/akidb/internal/clock"
	"github.com/akidb/akidb/internal/manifest"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/objectstore"
	"github.com/akidb/akidb/internal/segment"
	"github.com/akidb/akidb/internal/tier"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestCollection(t *testing.T) (*Collection, objectstore.Store, *manifest.Committer) {
	t.Helper()
	store := objectstore.NewMemStore()
	committer := manifest.NewCommitter(store)
	cache, err := tier.Open(context.Background(), store, filepath.Join(t.TempDir(), "warm.sqlite"), tier.DefaultPolicy(), clock.Real(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	opts := Options{
		Descriptor: model.CollectionDescriptor{
			Name:      "widgets",
			VectorDim: 2,
			Distance:  model.DistanceL2,
			HNSW:      model.DefaultHNSWParams(),
		},
		Store:            store,
		Cache:            cache,
		Committer:        committer,
		Logger:           testLogger(),
		WALDir:           filepath.Join(t.TempDir(), "wal"),
		SealPollInterval: time.Hour,
		SealBatchSize:    segment.DefaultBatchSize,
	}
	c, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, store, committer
}

func TestPutThenSearchFindsNearest(t *testing.T) {
	c, _, _ := openTestCollection(t)
	id := uuid.New()
	require.NoError(t, c.Put(context.Background(), id, model.Vector{1, 0}, nil))

	hits, err := c.Search(context.Background(), model.SearchRequest{Vector: model.Vector{1, 0}, TopK: 1, TimeoutMS: 1000})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
}

func TestDeleteExcludesFromSearchAndList(t *testing.T) {
	c, _, _ := openTestCollection(t)
	id := uuid.New()
	require.NoError(t, c.Put(context.Background(), id, model.Vector{1, 0}, nil))
	require.NoError(t, c.Delete(context.Background(), id))

	hits, err := c.Search(context.Background(), model.SearchRequest{Vector: model.Vector{1, 0}, TopK: 1, TimeoutMS: 1000})
	require.NoError(t, err)
	assert.Empty(t, hits)

	docs, err := c.List(context.Background(), model.ListRequest{Offset: 0, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPutRejectsWrongDimension(t *testing.T) {
	c, _, _ := openTestCollection(t)
	err := c.Put(context.Background(), uuid.New(), model.Vector{1, 2, 3}, nil)
	require.Error(t, err)
}

func TestDropRemovesManifestAndRejectsFurtherOps(t *testing.T) {
	c, store, committer := openTestCollection(t)
	id := uuid.New()
	require.NoError(t, c.Put(context.Background(), id, model.Vector{1, 0}, nil))

	require.NoError(t, c.Drop(context.Background()))

	_, err := store.Get(context.Background(), manifest.Key("widgets"), nil)
	assert.Error(t, err)

	err = c.Put(context.Background(), uuid.New(), model.Vector{1, 0}, nil)
	assert.Error(t, err)

	_, err = committer.Load(context.Background(), "widgets")
	assert.Error(t, err)
}

func TestOpenReplaysWALTailAfterRestart(t *testing.T) {
	store := objectstore.NewMemStore()
	committer := manifest.NewCommitter(store)
	cache, err := tier.Open(context.Background(), store, filepath.Join(t.TempDir(), "warm.sqlite"), tier.DefaultPolicy(), clock.Real(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	walDir := filepath.Join(t.TempDir(), "wal")
	descriptor := model.CollectionDescriptor{Name: "widgets", VectorDim: 2, Distance: model.DistanceL2, HNSW: model.DefaultHNSWParams()}

	opts := Options{
		Descriptor: descriptor, Store: store, Cache: cache, Committer: committer,
		Logger: testLogger(), WALDir: walDir,
		SealPollInterval: time.Hour, SealBatchSize: segment.DefaultBatchSize,
	}
	c1, err := Open(context.Background(), opts)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, c1.Put(context.Background(), id, model.Vector{1, 0}, nil))
	require.NoError(t, c1.Close(context.Background()))

	c2, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c2.Close(context.Background()) })

	hits, err := c2.Search(context.Background(), model.SearchRequest{Vector: model.Vector{1, 0}, TopK: 1, TimeoutMS: 1000})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
}

func TestCompactMergesSealedSegmentsAndDropsTombstones(t *testing.T) {
	c, _, committer := openTestCollection(t)

	live := uuid.New()
	dead := uuid.New()
	require.NoError(t, c.Put(context.Background(), live, model.Vector{1, 0}, nil))
	require.NoError(t, c.Put(context.Background(), dead, model.Vector{0, 1}, nil))
	require.NoError(t, c.Delete(context.Background(), dead))

	require.NoError(t, c.builder.Seal(context.Background()))

	// A second, tiny segment so Compact has >=2 sealed candidates to merge.
	other := uuid.New()
	require.NoError(t, c.Put(context.Background(), other, model.Vector{1, 1}, nil))
	require.NoError(t, c.builder.Seal(context.Background()))

	require.NoError(t, c.Compact(context.Background()))

	m, _, err := committer.Load(context.Background(), "widgets")
	require.NoError(t, err)
	require.Len(t, m.Segments, 1)
	assert.Equal(t, segment.StateSealed, m.Segments[0].State)
	assert.EqualValues(t, 2, m.Segments[0].RecordCount)
}
