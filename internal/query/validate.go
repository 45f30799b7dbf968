// Package query implements the query planner (spec.md §4.6): request
// validation, index-path selection, filter strategy, parallel per-segment
// fan-out, and deadline-bounded merge of partial results.
package query

import (
	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// ValidateSearch checks a SearchRequest against spec.md §4.6's rules,
// returning KindInvalidInput on any violation (P7, scenario 3).
func ValidateSearch(req model.SearchRequest, dim uint32) error {
	if uint32(len(req.Vector)) != dim {
		return akierr.New(akierr.KindInvalidInput, "query.validate",
			"vector dimension mismatch")
	}
	if req.TopK < 1 || req.TopK > model.MaxTopK {
		return akierr.New(akierr.KindInvalidInput, "query.validate",
			"top_k out of range [1, MaxTopK]")
	}
	if req.TimeoutMS <= 0 {
		return akierr.New(akierr.KindInvalidInput, "query.validate",
			"timeout_ms must be positive")
	}
	return nil
}

// ValidateList checks a ListRequest's pagination bounds (P7).
func ValidateList(req model.ListRequest) error {
	if req.Offset < 0 {
		return akierr.New(akierr.KindInvalidInput, "query.validate", "offset must be >= 0")
	}
	if !req.WithinBounds() {
		return akierr.New(akierr.KindInvalidInput, "query.validate",
			"limit out of range [1, MaxListLimit]")
	}
	return nil
}
