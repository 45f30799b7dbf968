package model

import "time"

// SearchRequest is the input to the query planner (spec.md §4.6).
type SearchRequest struct {
	Collection string
	Vector     Vector
	TopK       int
	Filter     Filter // nil means unfiltered
	TimeoutMS  int
}

// MaxTopK bounds SearchRequest.TopK (spec.md §4.6, default 1000).
const MaxTopK = 1000

// MaxListLimit bounds list-operation pagination (spec.md §4.6, P7).
const MaxListLimit = 1000

// SearchHit is one ranked result: a document id and its distance/score.
type SearchHit struct {
	ID       DocumentId
	Distance float32
}

// ListRequest paginates over a collection's documents.
type ListRequest struct {
	Collection string
	Offset     int
	Limit      int
}

// WithinBounds reports whether Limit lies in the [1, MaxListLimit] bound
// from spec.md §4.6 (P7). It never clamps; ValidateList in internal/query
// performs the rejection.
func (r ListRequest) WithinBounds() bool {
	return r.Limit >= 1 && r.Limit <= MaxListLimit
}

// Deadline converts TimeoutMS into an absolute time.Time relative to start.
func (r SearchRequest) Deadline(start time.Time) time.Time {
	return start.Add(time.Duration(r.TimeoutMS) * time.Millisecond)
}
