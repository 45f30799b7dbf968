package index

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// QdrantConfig configures the optional Qdrant-backed Index, an alternate
// ANN provider behind the same capability interface as HNSW (spec.md §9's
// "dynamic dispatch over providers" design note).
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
}

// QdrantIndex implements Index against a Qdrant server, so a collection can
// be configured to delegate ANN search to an external service instead of
// the in-process HNSW graph.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        uint64
	distance   model.DistanceMetric
	logger     *slog.Logger
	liveCount  atomic.Int64 // local estimate; Qdrant is the source of truth for actual counts
}

// parseQdrantURL extracts host, port, and TLS flag, preferring the gRPC
// port (6334) when a REST URL is given.
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("index: invalid qdrant url %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("index: invalid port in qdrant url %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}
	return host, port, useTLS, nil
}

func qdrantDistance(d model.DistanceMetric) qdrant.Distance {
	switch d {
	case model.DistanceCosine:
		return qdrant.Distance_Cosine
	case model.DistanceDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Euclid
	}
}

// NewQdrantIndex connects to a Qdrant server and ensures the backing
// collection exists with HNSW parameters matching params.
func NewQdrantIndex(cfg QdrantConfig, dim int, distance model.DistanceMetric, params model.HNSWParams, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, APIKey: cfg.APIKey, UseTLS: useTLS})
	if err != nil {
		return nil, fmt.Errorf("index: connect to qdrant at %s:%d: %w", host, port, err)
	}

	q := &QdrantIndex{client: client, collection: cfg.Collection, dim: uint64(dim), distance: distance, logger: logger}

	ctx := context.Background()
	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("index: check qdrant collection exists: %w", err)
	}
	if !exists {
		m := uint64(params.M)
		efConstruct := uint64(params.EfConstruction)
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dim,
				Distance: qdrantDistance(distance),
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("index: create qdrant collection %q: %w", cfg.Collection, err)
		}
	}
	return q, nil
}

func (q *QdrantIndex) Insert(id model.DocumentId, vector model.Vector, payload model.Payload) error {
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		fields[k] = v.String()
	}
	_, err := q.client.Upsert(context.Background(), &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id.String()),
			Vectors: qdrant.NewVectorsDense(vector),
			Payload: qdrant.NewValueMap(fields),
		}},
	})
	if err != nil {
		return akierr.Wrap(akierr.KindTransient, "index.qdrant.insert", "upsert point", err)
	}
	q.liveCount.Add(1)
	return nil
}

func (q *QdrantIndex) SoftDelete(id model.DocumentId) error {
	_, err := q.client.Delete(context.Background(), &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewID(id.String())}},
			},
		},
	})
	if err != nil {
		return akierr.Wrap(akierr.KindTransient, "index.qdrant.delete", "delete point", err)
	}
	q.liveCount.Add(-1)
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, query model.Vector, topK int, filter model.Filter) ([]model.SearchHit, error) {
	if topK <= 0 {
		return nil, akierr.New(akierr.KindInvalidInput, "index.qdrant.search", "top_k must be positive")
	}
	limit := uint64(topK) //nolint:gosec // topK is bounded by model.MaxTopK upstream

	// Qdrant evaluates payload filters server-side; this adapter has no
	// local payload copy to run model.Filter against, so filtered search
	// through this backend requires the caller to translate filter into a
	// qdrant.Filter out of band (left to the collection layer's plan step,
	// mirroring how the HNSW path owns its own oversampling strategy).
	_ = filter

	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(query),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, akierr.Wrap(akierr.KindTransient, "index.qdrant.search", "query", err)
	}

	out := make([]model.SearchHit, 0, len(scored))
	for _, sp := range scored {
		idStr := sp.Id.GetUuid()
		if idStr == "" {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			q.logger.Warn("index.qdrant: invalid point id", "id", idStr)
			continue
		}
		out = append(out, model.SearchHit{ID: id, Distance: sp.Score})
	}
	return out, nil
}

// List returns up to limit points ordered by id, skipping the first offset.
// Qdrant's scroll API paginates by point-id cursor rather than integer
// offset, so this fetches offset+limit points unbounded and slices the
// tail locally — acceptable for the modest page sizes spec.md §4.6 bounds
// list requests to (<= 1000), not for deep pagination over huge offsets.
func (q *QdrantIndex) List(ctx context.Context, offset, limit int) ([]model.Document, error) {
	want := uint32(offset + limit) //nolint:gosec // bounded by model.MaxListLimit upstream
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Limit:          qdrant.PtrOf(want),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, akierr.Wrap(akierr.KindTransient, "index.qdrant.list", "scroll", err)
	}
	if offset >= len(points) {
		return nil, nil
	}
	end := offset + limit
	if end > len(points) {
		end = len(points)
	}
	out := make([]model.Document, 0, end-offset)
	for _, p := range points[offset:end] {
		idStr := p.Id.GetUuid()
		if idStr == "" {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			q.logger.Warn("index.qdrant: invalid point id", "id", idStr)
			continue
		}
		out = append(out, model.Document{ID: id, Vector: p.GetVectors().GetVector().GetData()})
	}
	return out, nil
}

// Remove is a no-op for the Qdrant backend: SoftDelete already performs a
// real point deletion there (it has no local tombstone representation), so
// there is nothing further for archival eviction to reclaim.
func (q *QdrantIndex) Remove(model.DocumentId) error {
	return nil
}

func (q *QdrantIndex) Len() int {
	return int(q.liveCount.Load())
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
