// Package index implements the in-process ANN index over one collection's
// live vectors (spec.md §4.3): an HNSW graph as the default path, a
// brute-force fallback for small collections, and an optional pluggable
// remote backend behind the same capability interface.
package index

import (
	"context"

	"github.com/akidb/akidb/internal/model"
)

// Index is the capability every ANN backend exposes to the collection
// layer. HNSW is the default, in-process implementation; other backends
// (e.g. Qdrant) may satisfy the same interface so the collection layer
// never depends on a concrete index technology.
type Index interface {
	// Insert adds or replaces a document's vector and payload. Re-inserting
	// an existing id updates its vector/payload in place.
	Insert(id model.DocumentId, vector model.Vector, payload model.Payload) error

	// SoftDelete tombstones a document so it no longer appears in search
	// results; the node itself is reclaimed during compaction, not here.
	SoftDelete(id model.DocumentId) error

	// Search returns up to topK live, non-tombstoned documents ranked by
	// distance, honoring filter when non-nil (spec.md §4.3 filter-aware
	// search). Returns an empty slice, never an error, on an empty index.
	Search(ctx context.Context, query model.Vector, topK int, filter model.Filter) ([]model.SearchHit, error)

	// List returns up to limit live documents starting after offset,
	// ordered deterministically by id, for pagination (spec.md §4.6 "P7").
	List(ctx context.Context, offset, limit int) ([]model.Document, error)

	// Remove permanently erases a tombstoned node's graph representation.
	// Unlike SoftDelete (a logical, user-visible delete that keeps the node
	// as a connectivity bridge until compaction), Remove is used when a
	// segment holding the node is archived out of the live index — the
	// node must already be tombstoned before it can be removed.
	Remove(id model.DocumentId) error

	// Len reports the number of live (non-tombstoned) vectors.
	Len() int
}
