package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// jsonValue is Value's wire shape, used by the WAL entry codec to persist
// payloads without inventing a second serialization for the tagged union.
type jsonValue struct {
	Kind  ValueKind `json:"kind"`
	Bool  bool      `json:"bool,omitempty"`
	Int   int64     `json:"int,omitempty"`
	Float float64   `json:"float,omitempty"`
	Text  string    `json:"text,omitempty"`
	Lat   float64   `json:"lat,omitempty"`
	Lon   float64   `json:"lon,omitempty"`
	TSMS  int64     `json:"ts_ms,omitempty"`
	JSONB string    `json:"json_b64,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Kind: v.Kind}
	switch v.Kind {
	case KindBoolean:
		jv.Bool = v.Bool
	case KindInteger:
		jv.Int = v.Int
	case KindFloat:
		jv.Float = v.Float
	case KindText, KindKeyword:
		jv.Text = v.Text
	case KindGeoPoint:
		jv.Lat, jv.Lon = v.Geo.Lat, v.Geo.Lon
	case KindTimestamp:
		jv.TSMS = v.TimestampMS
	case KindJSON:
		jv.JSONB = base64.StdEncoding.EncodeToString(v.JSON)
	default:
		return nil, fmt.Errorf("model: cannot marshal unset Value")
	}
	return json.Marshal(jv)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	switch jv.Kind {
	case KindBoolean:
		*v = Bool(jv.Bool)
	case KindInteger:
		*v = Integer(jv.Int)
	case KindFloat:
		*v = Float(jv.Float)
	case KindText:
		*v = Text(jv.Text)
	case KindKeyword:
		*v = Keyword(jv.Text)
	case KindGeoPoint:
		*v = Geo(jv.Lat, jv.Lon)
	case KindTimestamp:
		*v = TimestampMS(jv.TSMS)
	case KindJSON:
		b, err := base64.StdEncoding.DecodeString(jv.JSONB)
		if err != nil {
			return fmt.Errorf("model: decode json value: %w", err)
		}
		*v = JSON(b)
	default:
		return fmt.Errorf("model: unknown value kind %d", jv.Kind)
	}
	return nil
}
