package query

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

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/clock"
	akindex "github.com/akidb/akidb/internal/index"
	"github.com/akidb/akidb/internal/manifest"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/objectstore"
	"github.com/akidb/akidb/internal/segment"
	"github.com/akidb/akidb/internal/tier"
)

func newTestPlanner(t *testing.T) (*Planner, *akindex.HNSW, objectstore.Store, *manifest.Committer) {
	t.Helper()
	return newTestPlannerWithDistance(t, model.DistanceL2)
}

func newTestPlannerWithDistance(t *testing.T, distance model.DistanceMetric) (*Planner, *akindex.HNSW, objectstore.Store, *manifest.Committer) {
	t.Helper()
	idx := akindex.New(2, distance, model.DefaultHNSWParams())
	store := objectstore.NewMemStore()
	dbPath := filepath.Join(t.TempDir(), "warm.sqlite")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := tier.Open(context.Background(), store, dbPath, tier.DefaultPolicy(), clock.Real(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	committer := manifest.NewCommitter(store)
	require.NoError(t, committer.Create(context.Background(), manifest.New("widgets")))

	return New(2, distance, idx, cache, committer), idx, store, committer
}

func TestSearchFindsNearestInLiveIndex(t *testing.T) {
	p, idx, _, _ := newTestPlanner(t)
	near := uuid.New()
	require.NoError(t, idx.Insert(near, model.Vector{1, 0}, nil))

	hits, err := p.Search(context.Background(), model.SearchRequest{
		Collection: "widgets", Vector: model.Vector{0.9, 0}, TopK: 1, TimeoutMS: 1000,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, near, hits[0].ID)
}

func TestSearchRejectsInvalidRequest(t *testing.T) {
	p, _, _, _ := newTestPlanner(t)
	_, err := p.Search(context.Background(), model.SearchRequest{
		Collection: "widgets", Vector: model.Vector{1}, TopK: 1, TimeoutMS: 1000,
	})
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))
}

func TestSearchIncludesArchivedSegmentHits(t *testing.T) {
	p, idx, store, committer := newTestPlanner(t)
	liveID := uuid.New()
	require.NoError(t, idx.Insert(liveID, model.Vector{5, 5}, nil))

	archivedID := uuid.New()
	seg := segment.Segment{
		ID:        segment.NewID(),
		Dimension: 2,
		Distance:  model.DistanceL2,
		Vectors:   []model.Vector{{1, 0}},
		IDs:       []model.DocumentId{archivedID},
	}
	raw, err := segment.Encode(seg, segment.DefaultCompressionLevel)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "collections/widgets/segments/seg1", raw, "")
	require.NoError(t, err)

	_, err = committer.Mutate(context.Background(), "widgets", func(m manifest.Manifest) (manifest.Manifest, error) {
		return m.WithSegmentAdded(manifest.SegmentDescriptor{
			ID: seg.ID, State: segment.StateArchived, RecordCount: 1, ObjectKey: "seg1",
		}), nil
	})
	require.NoError(t, err)

	hits, err := p.Search(context.Background(), model.SearchRequest{
		Collection: "widgets", Vector: model.Vector{0.9, 0}, TopK: 2, TimeoutMS: 1000,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, archivedID, hits[0].ID) // closer to the query vector than the live point
}

func TestSearchOrdersDotMetricDescending(t *testing.T) {
	p, idx, store, committer := newTestPlannerWithDistance(t, model.DistanceDot)

	// Dot scores as a similarity: higher is better, so the merged result
	// must rank the strongest match first even though it comes from the
	// archived fan-out rather than the live index.
	weakID := uuid.New()
	require.NoError(t, idx.Insert(weakID, model.Vector{1, 0}, nil))

	strongID := uuid.New()
	seg := segment.Segment{
		ID:        segment.NewID(),
		Dimension: 2,
		Distance:  model.DistanceDot,
		Vectors:   []model.Vector{{10, 0}},
		IDs:       []model.DocumentId{strongID},
	}
	raw, err := segment.Encode(seg, segment.DefaultCompressionLevel)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "collections/widgets/segments/seg1", raw, "")
	require.NoError(t, err)

	_, err = committer.Mutate(context.Background(), "widgets", func(m manifest.Manifest) (manifest.Manifest, error) {
		return m.WithSegmentAdded(manifest.SegmentDescriptor{
			ID: seg.ID, State: segment.StateArchived, RecordCount: 1, ObjectKey: "seg1",
		}), nil
	})
	require.NoError(t, err)

	hits, err := p.Search(context.Background(), model.SearchRequest{
		Collection: "widgets", Vector: model.Vector{1, 0}, TopK: 2, TimeoutMS: 1000,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, strongID, hits[0].ID)
	assert.Equal(t, weakID, hits[1].ID)
}

func TestListPaginatesLiveDocuments(t *testing.T) {
	p, idx, _, _ := newTestPlanner(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, idx.Insert(uuid.New(), model.Vector{float32(i), 0}, nil))
	}

	docs, err := p.List(context.Background(), model.ListRequest{Collection: "widgets", Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestListRejectsOutOfRangeLimit(t *testing.T) {
	p, _, _, _ := newTestPlanner(t)
	_, err := p.List(context.Background(), model.ListRequest{Collection: "widgets", Offset: 0, Limit: 0})
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))
}

func TestSearchReturnsDeadlineOnExpiredTimeout(t *testing.T) {
	p, idx, _, _ := newTestPlanner(t)
	require.NoError(t, idx.Insert(uuid.New(), model.Vector{1, 0}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := p.Search(ctx, model.SearchRequest{
		Collection: "widgets", Vector: model.Vector{1, 0}, TopK: 1, TimeoutMS: 1000,
	})
	require.Error(t, err)
	assert.Equal(t, akierr.KindDeadline, akierr.KindOf(err))
}
