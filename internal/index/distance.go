package index

import (
	"bytes"
	"math"

	"github.com/akidb/akidb/internal/model"
)

// DistanceFunc exposes distanceFunc to other packages (internal/query's
// archived-segment brute-force fan-out needs the same scoring this package
// uses internally, without duplicating it).
func DistanceFunc(metric model.DistanceMetric) func(a, b model.Vector) float32 {
	return distanceFunc(metric)
}

// distanceFunc scores two vectors of equal length for the given metric.
// NaN in either input propagates through ordinary float arithmetic into the
// result — no component of this package special-cases NaN inputs; callers
// filter NaN results at the boundary (I9) instead.
func distanceFunc(metric model.DistanceMetric) func(a, b model.Vector) float32 {
	switch metric {
	case model.DistanceCosine:
		return cosineDistance
	case model.DistanceDot:
		return dotScore
	default:
		return l2Distance
	}
}

func l2Distance(a, b model.Vector) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// cosineDistance assumes both vectors are already L2-normalized (spec.md
// §4.3 step 2: the index never normalizes silently), so the dot product is
// the cosine similarity and 1-similarity is the ascending distance.
func cosineDistance(a, b model.Vector) float32 {
	return 1 - dotScore(a, b)
}

func dotScore(a, b model.Vector) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// scored pairs a candidate with its distance for ordering.
type scored struct {
	id       model.DocumentId
	distance float32
}

// lessFor returns the comparator that places the best candidate first:
// ascending for L2/Cosine, descending for Dot (spec.md §4.3). NaN always
// sorts last regardless of direction (I9).
func lessFor(metric model.DistanceMetric) func(a, b scored) bool {
	ascending := metric.Ascending()
	return func(a, b scored) bool {
		aNaN, bNaN := math.IsNaN(float64(a.distance)), math.IsNaN(float64(b.distance))
		if aNaN != bNaN {
			return !aNaN // non-NaN sorts first regardless of direction
		}
		if aNaN && bNaN {
			return tieBreak(a.id, b.id)
		}
		if a.distance == b.distance {
			return tieBreak(a.id, b.id)
		}
		if ascending {
			return a.distance < b.distance
		}
		return a.distance > b.distance
	}
}

// tieBreak orders by DocumentId so result ordering is deterministic when
// distances coincide exactly.
func tieBreak(a, b model.DocumentId) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
