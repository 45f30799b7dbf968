// Package model defines the data types shared across the storage and
// indexing core: documents, collections, payload values, and the small
// value types (LSN, DistanceMetric) that thread through the WAL, segment
// codec, HNSW index, and manifest.
package model

import "github.com/google/uuid"

// DocumentId is opaque, comparable, and unique within a collection (I1).
// uuid.UUID already satisfies "opaque and comparable" — callers never rely
// on its internal bit layout.
type DocumentId = uuid.UUID

// Vector is a dense float32 embedding. Its length must equal the owning
// collection's VectorDim (I3); nothing in this package enforces that —
// callers validate at the boundary (see CollectionDescriptor.CheckVector
// and internal/query.ValidateSearch).
type Vector []float32

// Document is one vector record: an id, its embedding, and an arbitrary
// payload used for filtering and display. Two Documents with the same Id
// within one collection violate I1; the collection layer (not this type)
// enforces uniqueness.
type Document struct {
	ID      DocumentId
	Vector  Vector
	Payload Payload
}

// Clone returns a deep copy of d, safe to retain past the lifetime of any
// buffer d.Vector or d.Payload may have been decoded from.
func (d Document) Clone() Document {
	v := make(Vector, len(d.Vector))
	copy(v, d.Vector)
	return Document{
		ID:      d.ID,
		Vector:  v,
		Payload: d.Payload.Clone(),
	}
}
