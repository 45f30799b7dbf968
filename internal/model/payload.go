package model

import "fmt"

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

// Value is the tagged union described in spec.md §3: Boolean, Integer(i64),
// Float(f64), Text(utf8), Keyword(utf8), GeoPoint(lat,lon),
// Timestamp(epoch-ms), Json(bytes). Exactly one field is meaningful,
// selected by Kind; KindBoolean is the zero ValueKind, so the zero Value
// is Boolean false.
type Value struct {
	Kind      ValueKind
	Bool      bool
	Int       int64
	Float     float64
	Text      string // also holds Keyword
	Geo       GeoPoint
	TimestampMS int64
	JSON      []byte
}

func Bool(v bool) Value       { return Value{Kind: KindBoolean, Bool: v} }
func Integer(v int64) Value   { return Value{Kind: KindInteger, Int: v} }
func Float(v float64) Value   { return Value{Kind: KindFloat, Float: v} }
func Text(v string) Value     { return Value{Kind: KindText, Text: v} }
func Keyword(v string) Value  { return Value{Kind: KindKeyword, Text: v} }
func Geo(lat, lon float64) Value {
	return Value{Kind: KindGeoPoint, Geo: GeoPoint{Lat: lat, Lon: lon}}
}
func TimestampMS(ms int64) Value { return Value{Kind: KindTimestamp, TimestampMS: ms} }
func JSON(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Kind: KindJSON, JSON: cp}
}

// Clone returns a deep copy, only meaningful for the JSON variant which
// holds a byte slice.
func (v Value) Clone() Value {
	if v.Kind == KindJSON {
		return JSON(v.JSON)
	}
	return v
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

// Payload is the document's arbitrary metadata map.
type Payload map[string]Value

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v.Clone()
	}
	return out
}
