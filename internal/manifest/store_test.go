package manifest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akidb/akidb/internal/objectstore"
	"github.com/akidb/akidb/internal/segment"
)

func TestCreateAndLoadRoundTrip(t *testing.T) {
	store := objectstore.NewMemStore()
	c := NewCommitter(store)

	m := New("widgets")
	require.NoError(t, c.Create(context.Background(), m))

	loaded, etag, err := c.Load(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, "widgets", loaded.Collection)
	assert.Equal(t, uint64(0), loaded.Version)
	assert.NotEmpty(t, etag)
}

// A single Mutate applies its delta once, advances the version from 0 to 1,
// and recomputes TotalVectors from the added segment.
func TestMutateAddsSegmentAndAdvancesVersion(t *testing.T) {
	store := objectstore.NewMemStore()
	c := NewCommitter(store)
	require.NoError(t, c.Create(context.Background(), New("widgets")))

	desc := SegmentDescriptor{ID: segment.NewID(), State: segment.StateSealed, RecordCount: 100, ObjectKey: "seg1"}
	updated, err := c.Mutate(context.Background(), "widgets", func(m Manifest) (Manifest, error) {
		return m.WithSegmentAdded(desc), nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), updated.Version)
	require.Len(t, updated.Segments, 1)
	assert.Equal(t, uint64(100), updated.TotalVectors)
}

// I7 / scenario 6: two writers read the same version; the loser must reload
// and retry rather than fail outright, and the final manifest reflects both
// changes.
func TestMutateRetriesOnConcurrentConflict(t *testing.T) {
	store := objectstore.NewMemStore()
	c := NewCommitter(store)
	require.NoError(t, c.Create(context.Background(), New("widgets")))

	descA := SegmentDescriptor{ID: segment.NewID(), State: segment.StateSealed, RecordCount: 10, ObjectKey: "a"}
	descB := SegmentDescriptor{ID: segment.NewID(), State: segment.StateSealed, RecordCount: 20, ObjectKey: "b"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.Mutate(context.Background(), "widgets", func(m Manifest) (Manifest, error) {
			return m.WithSegmentAdded(descA), nil
		})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := c.Mutate(context.Background(), "widgets", func(m Manifest) (Manifest, error) {
			return m.WithSegmentAdded(descB), nil
		})
		assert.NoError(t, err)
	}()
	wg.Wait()

	final, _, err := c.Load(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Len(t, final.Segments, 2)
	assert.Equal(t, uint64(30), final.TotalVectors)
	assert.Equal(t, uint64(2), final.Version)
}

func TestMutateExhaustsRetriesAsConflict(t *testing.T) {
	store := objectstore.NewMemStore()
	c := NewCommitter(store).WithMaxRetries(1)
	require.NoError(t, c.Create(context.Background(), New("widgets")))

	attempts := 0
	_, err := c.Mutate(context.Background(), "widgets", func(m Manifest) (Manifest, error) {
		attempts++
		// Every call sneaks in an extra unconditional write first, so this
		// Mutate's conditional PUT always loses the race no matter how many
		// times it reloads.
		_, putErr := store.Put(context.Background(), Key("widgets"), mustEncode(t, m.WithSegmentAdded(SegmentDescriptor{ID: segment.NewID()})), "")
		require.NoError(t, putErr)
		return m.WithSegmentAdded(SegmentDescriptor{ID: segment.NewID()}), nil
	})
	require.Error(t, err)
	assert.True(t, attempts >= 1)
}

func TestSegmentStateTransitions(t *testing.T) {
	id := segment.NewID()
	m := New("widgets").WithSegmentAdded(SegmentDescriptor{ID: id, State: segment.StateActive, RecordCount: 5})

	sealed, err := m.WithSegmentState(id, segment.StateSealed)
	require.NoError(t, err)
	assert.Equal(t, segment.StateSealed, sealed.Segments[0].State)

	_, err = sealed.WithSegmentState(id, segment.StateArchived)
	require.Error(t, err) // Sealed -> Archived skips Compacting, illegal

	compacting, err := sealed.WithSegmentState(id, segment.StateCompacting)
	require.NoError(t, err)
	archived, err := compacting.WithSegmentState(id, segment.StateArchived)
	require.NoError(t, err)
	assert.Equal(t, segment.StateArchived, archived.Segments[0].State)
}

func TestWithSegmentRemovedReducesTotalVectors(t *testing.T) {
	id := segment.NewID()
	m := New("widgets").WithSegmentAdded(SegmentDescriptor{ID: id, RecordCount: 42})
	removed := m.WithSegmentRemoved(id)
	assert.Empty(t, removed.Segments)
	assert.Equal(t, uint64(0), removed.TotalVectors)
}

func TestWithDeletedMarksManifest(t *testing.T) {
	m := New("widgets")
	assert.False(t, m.Deleted)
	assert.True(t, m.WithDeleted().Deleted)
}

func mustEncode(t *testing.T, m Manifest) []byte {
	t.Helper()
	raw, err := encode(m)
	require.NoError(t, err)
	return raw
}
