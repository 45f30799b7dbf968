package segment

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

	"github.com/akidb/akidb/internal/manifest"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/objectstore"
	"github.com/akidb/akidb/internal/wal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBuilder(t *testing.T) (*Builder, *wal.WAL, objectstore.Store, *manifest.Committer) {
	t.Helper()
	w, err := wal.Open(wal.Config{Dir: filepath.Join(t.TempDir(), "wal"), StreamID: "widgets"}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	store := objectstore.NewMemStore()
	committer := manifest.NewCommitter(store)
	require.NoError(t, committer.Create(context.Background(), manifest.New("widgets")))

	b := NewBuilder(w, store, committer, "widgets", 2, model.DistanceL2, DefaultCompressionLevel, 0, time.Hour, DefaultBatchSize, testLogger())
	return b, w, store, committer
}

func TestSealBuildsSegmentFromPendingWALEntries(t *testing.T) {
	b, w, store, committer := newTestBuilder(t)

	id := uuid.New()
	_, err := w.Append(model.EntryPut, id, model.Document{ID: id, Vector: model.Vector{1, 2}})
	require.NoError(t, err)

	require.NoError(t, b.Seal(context.Background()))

	m, _, err := committer.Load(context.Background(), "widgets")
	require.NoError(t, err)
	require.Len(t, m.Segments, 1)
	assert.Equal(t, StateSealed, m.Segments[0].State)
	assert.EqualValues(t, 1, m.Segments[0].RecordCount)

	raw, err := store.Get(context.Background(), ObjectKey("widgets", m.Segments[0].ObjectKey), nil)
	require.NoError(t, err)
	seg, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, seg.IDs, 1)
	assert.Equal(t, id, seg.IDs[0])
}

func TestSealDropsDeletedDocsFromTheSameBatch(t *testing.T) {
	b, w, _, committer := newTestBuilder(t)

	id := uuid.New()
	_, err := w.Append(model.EntryPut, id, model.Document{ID: id, Vector: model.Vector{1, 2}})
	require.NoError(t, err)
	_, err = w.Append(model.EntryDelete, id, model.Document{})
	require.NoError(t, err)

	require.NoError(t, b.Seal(context.Background()))

	m, _, err := committer.Load(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Empty(t, m.Segments)
}

func TestSealIsNoOpWithNoPendingEntries(t *testing.T) {
	b, _, _, committer := newTestBuilder(t)
	require.NoError(t, b.Seal(context.Background()))

	m, _, err := committer.Load(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Empty(t, m.Segments)
}

func TestSealUpsertsLatestVersionWithinABatch(t *testing.T) {
	b, w, store, committer := newTestBuilder(t)

	id := uuid.New()
	_, err := w.Append(model.EntryPut, id, model.Document{ID: id, Vector: model.Vector{1, 2}})
	require.NoError(t, err)
	_, err = w.Append(model.EntryPut, id, model.Document{ID: id, Vector: model.Vector{3, 4}})
	require.NoError(t, err)

	require.NoError(t, b.Seal(context.Background()))

	m, _, err := committer.Load(context.Background(), "widgets")
	require.NoError(t, err)
	require.Len(t, m.Segments, 1)

	raw, err := store.Get(context.Background(), ObjectKey("widgets", m.Segments[0].ObjectKey), nil)
	require.NoError(t, err)
	seg, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, seg.Vectors, 1)
	assert.Equal(t, model.Vector{3, 4}, seg.Vectors[0])
}

func TestDrainSealsRemainingEntriesBeforeReturning(t *testing.T) {
	b, w, _, committer := newTestBuilder(t)
	id := uuid.New()
	_, err := w.Append(model.EntryPut, id, model.Document{ID: id, Vector: model.Vector{1, 2}})
	require.NoError(t, err)

	b.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.Drain(ctx)

	m, _, err := committer.Load(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Len(t, m.Segments, 1)
}
