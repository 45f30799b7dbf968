package akidb

import (
	"context"

	"github.com/akidb/akidb/internal/akierr"
	icollection "github.com/akidb/akidb/internal/collection"
	"github.com/akidb/akidb/internal/model"
)

// Collection is one collection's live handle, opened through DB.
// CreateCollection or DB.Collection. It wraps internal/collection.Collection
// and translates between this package's standalone public types and the
// core's internal model types at every call.
type Collection struct {
	inner *icollection.Collection
	name  string
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Put durably appends an upsert: the WAL is written before the live index
// is updated. Re-putting an existing id replaces its vector and payload.
func (c *Collection) Put(ctx context.Context, id DocumentID, vector []float32, payload Payload) error {
	return c.inner.Put(ctx, id, model.Vector(vector), payload.toInternal())
}

// Delete logically removes id: a tombstone is durably recorded before the
// index's soft-delete flag is set. Physical removal happens later, during
// compaction.
func (c *Collection) Delete(ctx context.Context, id DocumentID) error {
	return c.inner.Delete(ctx, id)
}

// Search runs a nearest-neighbor query, optionally filtered, and returns up
// to req.TopK hits ordered best-first.
func (c *Collection) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	if req.TopK <= 0 || req.TopK > MaxTopK {
		return nil, akierr.New(akierr.KindInvalidInput, "akidb.search", "top_k out of range")
	}
	hits, err := c.inner.Search(ctx, model.SearchRequest{
		Collection: c.name,
		Vector:     model.Vector(req.Vector),
		TopK:       req.TopK,
		Filter:     toInternalFilter(req.Filter),
		TimeoutMS:  req.TimeoutMS,
	})
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		out[i] = SearchHit{ID: h.ID, Distance: h.Distance}
	}
	return out, nil
}

// List paginates over the collection's live documents in id order.
func (c *Collection) List(ctx context.Context, req ListRequest) ([]Document, error) {
	if req.Limit < 1 || req.Limit > MaxListLimit {
		return nil, akierr.New(akierr.KindInvalidInput, "akidb.list", "limit out of range")
	}
	docs, err := c.inner.List(ctx, model.ListRequest{
		Collection: c.name,
		Offset:     req.Offset,
		Limit:      req.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Document{ID: d.ID, Vector: []float32(d.Vector), Payload: fromInternalPayload(d.Payload)}
	}
	return out, nil
}

// Compact merges small sealed segments into one, dropping records
// tombstoned since they were sealed, and reclaims the live index's
// tombstoned nodes.
func (c *Collection) Compact(ctx context.Context) error {
	return c.inner.Compact(ctx)
}

// Close stops the collection's background segment builder and closes its
// WAL. The manifest, tier cache, and object store outlive the handle.
func (c *Collection) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}

func (d CollectionDescriptor) toInternal() model.CollectionDescriptor {
	return model.CollectionDescriptor{
		Name:      d.Name,
		VectorDim: d.VectorDim,
		Distance:  model.DistanceMetric(d.Distance),
		HNSW: model.HNSWParams{
			M:              d.HNSW.M,
			EfConstruction: d.HNSW.EfConstruction,
			EfSearch:       d.HNSW.EfSearch,
		},
	}
}

func (p Payload) toInternal() model.Payload {
	if p == nil {
		return nil
	}
	out := make(model.Payload, len(p))
	for k, v := range p {
		out[k] = v.toInternal()
	}
	return out
}

func (v Value) toInternal() model.Value {
	return model.Value{
		Kind:        model.ValueKind(v.Kind),
		Bool:        v.Bool,
		Int:         v.Int,
		Float:       v.Float,
		Text:        v.Text,
		Geo:         model.GeoPoint{Lat: v.Geo.Lat, Lon: v.Geo.Lon},
		TimestampMS: v.TimestampMS,
		JSON:        v.JSON,
	}
}

func fromInternalPayload(p model.Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = fromInternalValue(v)
	}
	return out
}

func fromInternalValue(v model.Value) Value {
	return Value{
		Kind:        ValueKind(v.Kind),
		Bool:        v.Bool,
		Int:         v.Int,
		Float:       v.Float,
		Text:        v.Text,
		Geo:         GeoPoint{Lat: v.Geo.Lat, Lon: v.Geo.Lon},
		TimestampMS: v.TimestampMS,
		JSON:        v.JSON,
	}
}

// toInternalFilter adapts a public Filter to model.Filter. Composite
// filters (And/Or/Not) are walked recursively so a caller-built filter
// tree of this package's types converts in one pass.
func toInternalFilter(f Filter) model.Filter {
	if f == nil {
		return nil
	}
	switch t := f.(type) {
	case And:
		out := make(model.And, len(t))
		for i, sub := range t {
			out[i] = toInternalFilter(sub)
		}
		return out
	case Or:
		out := make(model.Or, len(t))
		for i, sub := range t {
			out[i] = toInternalFilter(sub)
		}
		return out
	case Not:
		return model.Not{Filter: toInternalFilter(t.Filter)}
	case Equals:
		return model.Equals{Field: t.Field, Value: t.Value.toInternal()}
	case Range:
		return model.Range{Field: t.Field, Min: t.Min, Max: t.Max}
	default:
		return model.FilterFunc(func(p model.Payload) bool { return f.Match(fromInternalPayload(p)) })
	}
}
