package index

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akidb/akidb/internal/model"
)

func unitVec(dim, hotIdx int) model.Vector {
	v := make(model.Vector, dim)
	v[hotIdx] = 1
	return v
}

// I10: search on an empty index returns empty results, not an error, and
// never divides by zero.
func TestSearchEmptyIndex(t *testing.T) {
	h := New(4, model.DistanceL2, model.DefaultHNSWParams())
	hits, err := h.Search(context.Background(), unitVec(4, 0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, h.Len())
}

func TestInsertAndSearchFindsNearest(t *testing.T) {
	h := New(4, model.DistanceL2, model.DefaultHNSWParams())

	near := uuid.New()
	far := uuid.New()
	require.NoError(t, h.Insert(near, model.Vector{1, 0, 0, 0}, nil))
	require.NoError(t, h.Insert(far, model.Vector{0, 0, 0, 1}, nil))

	hits, err := h.Search(context.Background(), model.Vector{0.9, 0.1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, near, hits[0].ID)
}

func TestSoftDeleteExcludesFromSearch(t *testing.T) {
	h := New(2, model.DistanceL2, model.DefaultHNSWParams())
	id := uuid.New()
	require.NoError(t, h.Insert(id, model.Vector{1, 1}, nil))
	assert.Equal(t, 1, h.Len())

	require.NoError(t, h.SoftDelete(id))
	assert.Equal(t, 0, h.Len())

	hits, err := h.Search(context.Background(), model.Vector{1, 1}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// I9: a NaN-distance candidate must not occupy a top-k slot while a
// non-NaN candidate is available.
func TestSearchExcludesNaNWhenNonNaNAvailable(t *testing.T) {
	h := New(2, model.DistanceL2, model.DefaultHNSWParams())
	good := uuid.New()
	bad := uuid.New()
	require.NoError(t, h.Insert(good, model.Vector{1, 0}, nil))
	require.NoError(t, h.Insert(bad, model.Vector{float32(math.NaN()), 0}, nil))

	hits, err := h.Search(context.Background(), model.Vector{1, 0}, 2, nil)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.False(t, math.IsNaN(float64(hit.Distance)))
		assert.NotEqual(t, bad, hit.ID)
	}
}

func TestSearchWithFilter(t *testing.T) {
	h := New(2, model.DistanceL2, model.DefaultHNSWParams())
	for i := 0; i < 10; i++ {
		id := uuid.New()
		kind := "b"
		if i%2 == 0 {
			kind = "a"
		}
		require.NoError(t, h.Insert(id, model.Vector{float32(i), 0}, model.Payload{"kind": model.Keyword(kind)}))
	}

	filter := model.Equals{Field: "kind", Value: model.Keyword("a")}
	hits, err := h.Search(context.Background(), model.Vector{0, 0}, 3, filter)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestRejectsWrongDimension(t *testing.T) {
	h := New(4, model.DistanceL2, model.DefaultHNSWParams())
	err := h.Insert(uuid.New(), model.Vector{1, 2}, nil)
	require.Error(t, err)

	require.NoError(t, h.Insert(uuid.New(), model.Vector{1, 2, 3, 4}, nil))
	_, err = h.Search(context.Background(), model.Vector{1, 2}, 1, nil)
	require.Error(t, err)
}

func TestListPaginatesDeterministically(t *testing.T) {
	h := New(2, model.DistanceL2, model.DefaultHNSWParams())
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Insert(uuid.New(), model.Vector{float32(i), 0}, nil))
	}

	first, err := h.List(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := h.List(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rest, err := h.List(context.Background(), 4, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	beyond, err := h.List(context.Background(), 100, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestListExcludesTombstoned(t *testing.T) {
	h := New(2, model.DistanceL2, model.DefaultHNSWParams())
	live := uuid.New()
	dead := uuid.New()
	require.NoError(t, h.Insert(live, model.Vector{1, 0}, nil))
	require.NoError(t, h.Insert(dead, model.Vector{0, 1}, nil))
	require.NoError(t, h.SoftDelete(dead))

	docs, err := h.List(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, live, docs[0].ID)
}

func TestRemoveRequiresTombstoneFirst(t *testing.T) {
	h := New(2, model.DistanceL2, model.DefaultHNSWParams())
	id := uuid.New()
	require.NoError(t, h.Insert(id, model.Vector{1, 0}, nil))

	err := h.Remove(id)
	assert.Error(t, err)

	require.NoError(t, h.SoftDelete(id))
	require.NoError(t, h.Remove(id))

	docs, err := h.List(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCompactTombstonesReclaimsDeadNodesAndKeepsLiveSearchable(t *testing.T) {
	h := New(2, model.DistanceL2, model.DefaultHNSWParams())
	live := uuid.New()
	dead := uuid.New()
	require.NoError(t, h.Insert(live, model.Vector{1, 0}, nil))
	require.NoError(t, h.Insert(dead, model.Vector{0, 1}, nil))
	require.NoError(t, h.SoftDelete(dead))

	removed := h.CompactTombstones()
	assert.Equal(t, 1, removed)

	hits, err := h.Search(context.Background(), model.Vector{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, live, hits[0].ID)

	err = h.Remove(dead)
	require.NoError(t, err) // already gone: Remove on an absent id is a no-op
}

func TestDotMetricSortsDescending(t *testing.T) {
	h := New(2, model.DistanceDot, model.DefaultHNSWParams())
	low := uuid.New()
	high := uuid.New()
	require.NoError(t, h.Insert(low, model.Vector{0.1, 0}, nil))
	require.NoError(t, h.Insert(high, model.Vector{0.9, 0}, nil))

	hits, err := h.Search(context.Background(), model.Vector{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, high, hits[0].ID)
}
