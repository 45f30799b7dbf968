package akidb

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/akidb/akidb/internal/objectstore"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	store := objectstore.NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := New(context.Background(), store, t.TempDir(), WithWarmDBPath(t.TempDir()+"/warm.db"), WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestCreateCollectionAndPutSearch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	col, err := db.CreateCollection(ctx, CollectionDescriptor{Name: "widgets", VectorDim: 3, HNSW: DefaultHNSWParams()})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	id := NewDocumentID()
	if err := col.Put(ctx, id, []float32{1, 0, 0}, Payload{"color": Keyword("red")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	hits, err := col.Search(ctx, SearchRequest{Vector: []float32{1, 0, 0}, TopK: 5, TimeoutMS: 1000})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != id {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestCreateCollectionDuplicateConflicts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	desc := CollectionDescriptor{Name: "dupes", VectorDim: 2, HNSW: DefaultHNSWParams()}
	if _, err := db.CreateCollection(ctx, desc); err != nil {
		t.Fatalf("first CreateCollection: %v", err)
	}
	if _, err := db.CreateCollection(ctx, desc); err == nil {
		t.Fatal("expected conflict on duplicate creation")
	}
}

func TestSearchRejectsOutOfRangeTopK(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	col, err := db.CreateCollection(ctx, CollectionDescriptor{Name: "bounds", VectorDim: 2, HNSW: DefaultHNSWParams()})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := col.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 0}); err == nil {
		t.Fatal("expected error for top_k=0")
	}
	if _, err := col.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: MaxTopK + 1}); err == nil {
		t.Fatal("expected error for top_k over bound")
	}
}

func TestPutDeleteListRoundtrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	col, err := db.CreateCollection(ctx, CollectionDescriptor{Name: "docs", VectorDim: 2, HNSW: DefaultHNSWParams()})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = NewDocumentID()
		if err := col.Put(ctx, ids[i], []float32{float32(i), 0}, nil); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	if err := col.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	docs, err := col.List(ctx, ListRequest{Offset: 0, Limit: MaxListLimit})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 live documents after delete, got %d", len(docs))
	}
}

func TestDropCollectionRequiresOpenHandle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.DropCollection(ctx, "never-opened"); err == nil {
		t.Fatal("expected error dropping a collection never opened in this DB")
	}

	if _, err := db.CreateCollection(ctx, CollectionDescriptor{Name: "to-drop", VectorDim: 2, HNSW: DefaultHNSWParams()}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := db.DropCollection(ctx, "to-drop"); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
}

func TestSearchOrdersDotMetricByDescendingScore(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	col, err := db.CreateCollection(ctx, CollectionDescriptor{
		Name: "dotmetric", VectorDim: 2, Distance: DistanceDot, HNSW: DefaultHNSWParams(),
	})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	weak := NewDocumentID()
	strong := NewDocumentID()
	if err := col.Put(ctx, weak, []float32{1, 0}, nil); err != nil {
		t.Fatalf("Put weak: %v", err)
	}
	if err := col.Put(ctx, strong, []float32{10, 0}, nil); err != nil {
		t.Fatalf("Put strong: %v", err)
	}

	hits, err := col.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 2, TimeoutMS: 1000})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != strong || hits[1].ID != weak {
		t.Fatalf("expected descending dot-score order [strong, weak], got %+v", hits)
	}
}

func TestFilterConversionRoundtrips(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	col, err := db.CreateCollection(ctx, CollectionDescriptor{Name: "filtered", VectorDim: 2, HNSW: DefaultHNSWParams()})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	matchID := NewDocumentID()
	if err := col.Put(ctx, matchID, []float32{1, 0}, Payload{"tier": Keyword("gold")}); err != nil {
		t.Fatalf("Put match: %v", err)
	}
	if err := col.Put(ctx, NewDocumentID(), []float32{1, 0}, Payload{"tier": Keyword("silver")}); err != nil {
		t.Fatalf("Put other: %v", err)
	}

	hits, err := col.Search(ctx, SearchRequest{
		Vector:    []float32{1, 0},
		TopK:      10,
		Filter:    Equals{Field: "tier", Value: Keyword("gold")},
		TimeoutMS: 1000,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != matchID {
		t.Fatalf("expected only the gold-tier document, got %+v", hits)
	}
}
