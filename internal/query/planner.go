package query

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/index"
	"github.com/akidb/akidb/internal/manifest"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/segment"
	"github.com/akidb/akidb/internal/tier"
)

// maxSegmentWorkers is the fan-out worker cap for per-segment brute-force
// search, mirroring the teacher's BackfillScoring worker-limit pattern
// (internal/conflicts/scorer.go: errgroup.WithContext + SetLimit).
const maxSegmentWorkers = 8

// Planner executes SearchRequests: validation, plan construction (index
// path + filter strategy, spec.md §4.6), parallel per-segment fan-out over
// archived segments the live index no longer reflects, and deadline-bounded
// merge of results.
type Planner struct {
	dim       uint32
	distance  model.DistanceMetric
	idx       index.Index
	cache     *tier.Cache
	committer *manifest.Committer
}

// New returns a Planner over one collection's live index, tier cache, and
// manifest. distance determines the merge order mergeResults applies to
// combined live/archived hits (ascending for L2/Cosine, descending for Dot,
// spec.md §4.3 step 2 / §4.6).
func New(dim uint32, distance model.DistanceMetric, idx index.Index, cache *tier.Cache, committer *manifest.Committer) *Planner {
	return &Planner{dim: dim, distance: distance, idx: idx, cache: cache, committer: committer}
}

// Search validates req, executes it against the live index and any
// archived segments the manifest still tracks, and returns merged,
// deadline-bounded results (spec.md §4.6, §5 "Cancellation & timeouts").
func (p *Planner) Search(ctx context.Context, req model.SearchRequest) ([]model.SearchHit, error) {
	if err := ValidateSearch(req, p.dim); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(time.Duration(req.TimeoutMS) * time.Millisecond)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	liveHits, err := p.idx.Search(ctx, req.Vector, req.TopK, req.Filter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, akierr.Wrap(akierr.KindDeadline, "query.search", "deadline exceeded", ctx.Err())
		}
		return nil, err
	}

	archivedHits, err := p.searchArchivedSegments(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, akierr.Wrap(akierr.KindDeadline, "query.search", "deadline exceeded during segment fan-out", ctx.Err())
		}
		return nil, err
	}

	return mergeResults(liveHits, archivedHits, req.TopK, p.distance.Ascending()), nil
}

// List paginates over a collection's live documents (spec.md §4.6 "P7").
// Archived segments are not consulted: list order is defined over the
// live index only, which always holds every non-archived record.
func (p *Planner) List(ctx context.Context, req model.ListRequest) ([]model.Document, error) {
	if err := ValidateList(req); err != nil {
		return nil, err
	}
	return p.idx.List(ctx, req.Offset, req.Limit)
}

// searchArchivedSegments brute-force searches every manifest-tracked
// segment in the Archived state (fully compacted out of the live graph)
// through the tier cache, fanning workers out in parallel and bounding the
// whole fan-out by ctx's deadline. Segments still Active/Sealed/Compacting
// are fully represented by the live index and are skipped.
func (p *Planner) searchArchivedSegments(ctx context.Context, req model.SearchRequest) ([]model.SearchHit, error) {
	m, _, err := p.committer.Load(ctx, req.Collection)
	if err != nil {
		if akierr.Is(err, akierr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var archived []manifest.SegmentDescriptor
	for _, d := range m.Segments {
		if d.State == segment.StateArchived {
			archived = append(archived, d)
		}
	}
	if len(archived) == 0 {
		return nil, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxSegmentWorkers)

	results := make([][]model.SearchHit, len(archived))
	for i, desc := range archived {
		i, desc := i, desc
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}
			key := tier.Key{Collection: req.Collection, SegmentID: desc.ID.String()}
			seg, _, err := p.cache.Get(gCtx, key, desc.ObjectKey, desc.RecordCount)
			if err != nil {
				return err
			}
			results[i] = bruteForceSegment(seg, req.Vector, req.TopK, req.Filter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []model.SearchHit
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

func bruteForceSegment(seg *segment.Segment, query model.Vector, topK int, filter model.Filter) []model.SearchHit {
	dist := index.DistanceFunc(seg.Distance)
	ascending := seg.Distance.Ascending()
	var hits []model.SearchHit
	for i, v := range seg.Vectors {
		if filter != nil {
			var payload model.Payload
			if i < len(seg.Payloads) {
				payload = seg.Payloads[i]
			}
			if !filter.Match(payload) {
				continue
			}
		}
		hits = append(hits, model.SearchHit{ID: seg.IDs[i], Distance: dist(query, v)})
	}
	sort.Slice(hits, func(a, b int) bool {
		da, db := hits[a].Distance, hits[b].Distance
		aNaN, bNaN := math.IsNaN(float64(da)), math.IsNaN(float64(db))
		if aNaN != bNaN {
			return !aNaN
		}
		if aNaN && bNaN {
			return false
		}
		if ascending {
			return da < db
		}
		return da > db
	})
	if hasNonNaN(hits) {
		hits = stripNaN(hits)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func hasNonNaN(hits []model.SearchHit) bool {
	for _, h := range hits {
		if !math.IsNaN(float64(h.Distance)) {
			return true
		}
	}
	return false
}

func stripNaN(hits []model.SearchHit) []model.SearchHit {
	out := hits[:0]
	for _, h := range hits {
		if !math.IsNaN(float64(h.Distance)) {
			out = append(out, h)
		}
	}
	return out
}

// mergeResults combines live-index and archived-segment hits, de-duplicates
// by document id (the live index always wins on a collision, since it
// reflects the most recent tombstone/update state), sorts by distance in
// the direction ascending demands (true for L2/Cosine, false for Dot,
// spec.md §4.3 step 2 / §4.6), and trims to topK.
func mergeResults(live, archived []model.SearchHit, topK int, ascending bool) []model.SearchHit {
	seen := make(map[model.DocumentId]bool, len(live))
	out := make([]model.SearchHit, 0, len(live)+len(archived))
	for _, h := range live {
		seen[h.ID] = true
		out = append(out, h)
	}
	for _, h := range archived {
		if seen[h.ID] {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(a, b int) bool {
		if ascending {
			return out[a].Distance < out[b].Distance
		}
		return out[a].Distance > out[b].Distance
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
