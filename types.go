package akidb

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// DocumentID is opaque, comparable, and unique within a collection. No
// internal package imports — safe to use from outside the module.
type DocumentID = uuid.UUID

// NewDocumentID generates a fresh random document id.
func NewDocumentID() DocumentID { return uuid.New() }

// DistanceMetric selects the distance function a collection's HNSW index
// orders candidates by. Cosine requires L2-normalized input vectors — the
// index never normalizes silently.
type DistanceMetric uint8

const (
	DistanceL2 DistanceMetric = iota
	DistanceCosine
	DistanceDot
)

func (d DistanceMetric) String() string {
	switch d {
	case DistanceL2:
		return "l2"
	case DistanceCosine:
		return "cosine"
	case DistanceDot:
		return "dot"
	default:
		return "unknown"
	}
}

// HNSWParams holds the construction/query parameters for a collection's
// index. Defaults: M=32, EfConstruction=200, EfSearch=64.
type HNSWParams struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultHNSWParams returns conservative defaults suitable for most workloads.
func DefaultHNSWParams() HNSWParams {
	return HNSWParams{M: 32, EfConstruction: 200, EfSearch: 64}
}

// CollectionDescriptor is the immutable-after-creation identity of a
// collection: name, vector dimension, and distance metric never change
// once the collection exists. HNSW parameters may be tuned later; changes
// affect future inserts/searches only.
type CollectionDescriptor struct {
	Name      string
	VectorDim uint32
	Distance  DistanceMetric
	HNSW      HNSWParams
}

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindBoolean ValueKind = iota
	KindInteger
	KindFloat
	KindText
	KindKeyword
	KindGeoPoint
	KindTimestamp
	KindJSON
)

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Value is a tagged union over a document payload field: Boolean, Integer
// (int64), Float (float64), Text, Keyword, GeoPoint, Timestamp (epoch-ms),
// or JSON (raw bytes). Exactly one field is meaningful, selected by Kind.
type Value struct {
	Kind        ValueKind
	Bool        bool
	Int         int64
	Float       float64
	Text        string // also holds Keyword
	Geo         GeoPoint
	TimestampMS int64
	JSON        []byte
}

func Bool(v bool) Value          { return Value{Kind: KindBoolean, Bool: v} }
func Integer(v int64) Value      { return Value{Kind: KindInteger, Int: v} }
func Float(v float64) Value      { return Value{Kind: KindFloat, Float: v} }
func Text(v string) Value        { return Value{Kind: KindText, Text: v} }
func Keyword(v string) Value     { return Value{Kind: KindKeyword, Text: v} }
func Geo(lat, lon float64) Value { return Value{Kind: KindGeoPoint, Geo: GeoPoint{Lat: lat, Lon: lon}} }
func TimestampMS(ms int64) Value { return Value{Kind: KindTimestamp, TimestampMS: ms} }
func JSONValue(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Kind: KindJSON, JSON: cp}
}

func (v Value) String() string {
	switch v.Kind {
	case KindBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindText, KindKeyword:
		return v.Text
	case KindGeoPoint:
		return fmt.Sprintf("(%g,%g)", v.Geo.Lat, v.Geo.Lon)
	case KindTimestamp:
		return fmt.Sprintf("%dms", v.TimestampMS)
	case KindJSON:
		return string(v.JSON)
	default:
		return "<unset>"
	}
}

// Payload is a document's arbitrary metadata map, used for filtering and
// display.
type Payload map[string]Value

// Filter is a predicate over a document's Payload, evaluated during
// filtered search. Implementations must be safe for concurrent use.
type Filter interface {
	Match(p Payload) bool
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(p Payload) bool

func (f FilterFunc) Match(p Payload) bool { return f(p) }

// And combines filters with logical AND; an empty And matches everything.
type And []Filter

func (a And) Match(p Payload) bool {
	for _, f := range a {
		if !f.Match(p) {
			return false
		}
	}
	return true
}

// Or combines filters with logical OR; an empty Or matches nothing.
type Or []Filter

func (o Or) Match(p Payload) bool {
	for _, f := range o {
		if f.Match(p) {
			return true
		}
	}
	return false
}

// Not negates a filter.
type Not struct{ Filter Filter }

func (n Not) Match(p Payload) bool { return !n.Filter.Match(p) }

// Equals matches when payload[Field] equals Value, compared by Kind and
// the matching variant field. A missing field never matches.
type Equals struct {
	Field string
	Value Value
}

func (e Equals) Match(p Payload) bool {
	v, ok := p[e.Field]
	if !ok || v.Kind != e.Value.Kind {
		return false
	}
	switch v.Kind {
	case KindBoolean:
		return v.Bool == e.Value.Bool
	case KindInteger:
		return v.Int == e.Value.Int
	case KindFloat:
		return v.Float == e.Value.Float
	case KindText, KindKeyword:
		return v.Text == e.Value.Text
	case KindTimestamp:
		return v.TimestampMS == e.Value.TimestampMS
	case KindGeoPoint:
		return v.Geo == e.Value.Geo
	case KindJSON:
		return bytes.Equal(v.JSON, e.Value.JSON)
	default:
		return false
	}
}

// Range matches numeric or timestamp fields within [Min, Max] (inclusive
// bounds apply only when the corresponding pointer is non-nil).
type Range struct {
	Field string
	Min   *float64
	Max   *float64
}

func (r Range) Match(p Payload) bool {
	v, ok := p[r.Field]
	if !ok {
		return false
	}
	var x float64
	switch v.Kind {
	case KindInteger:
		x = float64(v.Int)
	case KindFloat:
		x = v.Float
	case KindTimestamp:
		x = float64(v.TimestampMS)
	default:
		return false
	}
	if r.Min != nil && x < *r.Min {
		return false
	}
	if r.Max != nil && x > *r.Max {
		return false
	}
	return true
}

// Document is one vector record: an id, its embedding, and an arbitrary
// payload.
type Document struct {
	ID      DocumentID
	Vector  []float32
	Payload Payload
}

// SearchHit is one ranked search result: a document id and its distance
// (or, for DistanceDot, its similarity score) from the query vector.
type SearchHit struct {
	ID       DocumentID
	Distance float32
}

// MaxTopK bounds SearchRequest.TopK.
const MaxTopK = 1000

// MaxListLimit bounds ListRequest.Limit.
const MaxListLimit = 1000

// SearchRequest is the input to a collection's nearest-neighbor search.
type SearchRequest struct {
	Vector    []float32
	TopK      int
	Filter    Filter // nil means unfiltered
	TimeoutMS int
}

// ListRequest paginates over a collection's live documents. Limit must be
// in [1, MaxListLimit].
type ListRequest struct {
	Offset int
	Limit  int
}
