package model

import "bytes"

// Filter is a predicate over a document's Payload, evaluated during
// filtered search (spec.md §4.3 "Filter-aware search"). Implementations
// must be safe for concurrent use — the index may evaluate the same
// Filter from multiple goroutines during oversampled postfiltering.
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

// Equals matches when payload[field] equals value, compared by Kind and
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
// bounds are applied only when the corresponding pointer is non-nil).
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
