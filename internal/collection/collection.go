// Package collection wires the WAL, HNSW index, manifest, tier cache, and
// segment builder together into the single handle a caller opens, mutates,
// and queries a collection through (spec.md §2, §9 "no process-wide mutable
// state is required... owned by a collection handle").
package collection

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/index"
	"github.com/akidb/akidb/internal/manifest"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/objectstore"
	"github.com/akidb/akidb/internal/query"
	"github.com/akidb/akidb/internal/segment"
	"github.com/akidb/akidb/internal/telemetry"
	"github.com/akidb/akidb/internal/tier"
	"github.com/akidb/akidb/internal/wal"
)

// Options configures how a collection's on-disk and in-memory state is
// assembled. Everything here is a caller-owned collaborator (spec.md §1:
// the core consumes only an object store, a clock, and a logger); the
// config package is responsible for translating named options (spec.md §6)
// into this shape.
type Options struct {
	Descriptor model.CollectionDescriptor
	Store      objectstore.Store
	Cache      *tier.Cache
	Committer  *manifest.Committer
	Logger     *slog.Logger

	WALDir           string
	WALRollBytes     int64
	CompressionLevel segment.CompressionLevel
	SealPollInterval time.Duration
	SealBatchSize    int
	CompactThreshold uint64 // segments at or under this byte size are compaction candidates
}

// Collection is one collection's live handle: WAL + index + manifest +
// tier cache + segment builder, wired together and ready to serve Put,
// Delete, Search, List, Compact, and Drop.
type Collection struct {
	descriptor model.CollectionDescriptor
	store      objectstore.Store
	cache      *tier.Cache
	committer  *manifest.Committer
	logger     *slog.Logger

	walDir  string
	w       *wal.WAL
	idx     index.Index
	builder *segment.Builder
	planner *query.Planner

	compactThreshold uint64

	dropped atomic.Bool
	wg      sync.WaitGroup

	mu         sync.Mutex
	deletedIDs map[model.DocumentId]struct{}
}

// Open reconstructs a collection's live index from its manifest's
// non-archived segments (oldest LSN first) plus whatever WAL tail remains
// unsealed, then starts its background segment builder. Archived segments
// are deliberately not loaded into the live graph: their records are no
// longer reachable through the fast path and are instead searched via
// internal/query's brute-force fan-out.
func Open(ctx context.Context, opts Options) (*Collection, error) {
	if err := opts.Descriptor.Validate(); err != nil {
		return nil, akierr.Wrap(akierr.KindInvalidInput, "collection.open", "invalid descriptor", err)
	}

	m, _, err := opts.Committer.Load(ctx, opts.Descriptor.Name)
	if err != nil {
		if !akierr.Is(err, akierr.KindNotFound) {
			return nil, err
		}
		m = manifest.New(opts.Descriptor.Name)
		if err := opts.Committer.Create(ctx, m); err != nil {
			return nil, err
		}
	}

	idx := index.New(int(opts.Descriptor.VectorDim), opts.Descriptor.Distance, opts.Descriptor.HNSW)

	segments := append([]manifest.SegmentDescriptor(nil), m.Segments...)
	sort.Slice(segments, func(i, j int) bool { return segments[i].LSNLo < segments[j].LSNLo })

	var lastSealedLSN model.LSN
	for _, d := range segments {
		if d.LSNHi > lastSealedLSN {
			lastSealedLSN = d.LSNHi
		}
		if d.State == segment.StateArchived {
			continue
		}
		key := tier.Key{Collection: opts.Descriptor.Name, SegmentID: d.ID.String()}
		seg, _, err := opts.Cache.Get(ctx, key, d.ObjectKey, d.RecordCount)
		if err != nil {
			return nil, err
		}
		for i, id := range seg.IDs {
			var payload model.Payload
			if i < len(seg.Payloads) {
				payload = seg.Payloads[i]
			}
			if err := idx.Insert(id, seg.Vectors[i], payload); err != nil {
				return nil, err
			}
		}
	}

	w, err := wal.Open(wal.Config{Dir: opts.WALDir, StreamID: opts.Descriptor.Name, RollBytes: opts.WALRollBytes}, opts.Logger)
	if err != nil {
		return nil, err
	}

	tail, err := w.Replay(lastSealedLSN + 1)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	for _, e := range tail {
		switch e.Kind {
		case model.EntryPut:
			if err := idx.Insert(e.Doc.ID, e.Doc.Vector, e.Doc.Payload); err != nil {
				_ = w.Close()
				return nil, err
			}
		case model.EntryDelete, model.EntryTombstone:
			if err := idx.SoftDelete(e.DocID); err != nil && !akierr.Is(err, akierr.KindNotFound) {
				_ = w.Close()
				return nil, err
			}
		}
	}

	level := opts.CompressionLevel
	if level == 0 {
		level = segment.DefaultCompressionLevel
	}
	builder := segment.NewBuilder(w, opts.Store, opts.Committer, opts.Descriptor.Name, opts.Descriptor.VectorDim,
		opts.Descriptor.Distance, level, lastSealedLSN, opts.SealPollInterval, opts.SealBatchSize, opts.Logger)
	builder.Start(ctx)
	telemetry.RegisterWALMetrics(opts.Descriptor.Name, w.Stats())

	threshold := opts.CompactThreshold
	if threshold == 0 {
		threshold = defaultCompactThreshold
	}

	c := &Collection{
		descriptor:       opts.Descriptor,
		store:            opts.Store,
		cache:            opts.Cache,
		committer:        opts.Committer,
		logger:           opts.Logger,
		walDir:           opts.WALDir,
		w:                w,
		idx:              idx,
		builder:          builder,
		planner:          query.New(opts.Descriptor.VectorDim, opts.Descriptor.Distance, idx, opts.Cache, opts.Committer),
		compactThreshold: threshold,
		deletedIDs:       make(map[model.DocumentId]struct{}),
	}
	return c, nil
}

// defaultCompactThreshold is the size at or under which a sealed segment is
// a compaction candidate, absent an explicit override.
const defaultCompactThreshold = 8 << 20

// Put durably appends an upsert (WAL first, per spec.md §2's write path)
// then applies it to the live index. Re-inserting an existing id is a
// plain upsert (the open question on replay idempotency is decided for
// the write path here: put is always upsert semantics, matching spec.md
// §3's "Lifecycle" wording and the index's own Insert contract).
func (c *Collection) Put(ctx context.Context, id model.DocumentId, vector model.Vector, payload model.Payload) error {
	if c.dropped.Load() {
		return akierr.New(akierr.KindNotFound, "collection.put", "collection has been dropped")
	}
	if err := c.descriptor.CheckVector(vector); err != nil {
		return akierr.Wrap(akierr.KindInvalidInput, "collection.put", "vector dimension mismatch", err)
	}
	doc := model.Document{ID: id, Vector: vector, Payload: payload}
	if _, err := c.w.Append(model.EntryPut, id, doc); err != nil {
		return err
	}
	if err := c.idx.Insert(id, vector, payload); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.deletedIDs, id)
	c.mu.Unlock()
	return nil
}

// Delete logically removes id: a tombstone is durably recorded in the WAL
// before the index's soft-delete flag is set (spec.md §3 "Lifecycle").
func (c *Collection) Delete(ctx context.Context, id model.DocumentId) error {
	if c.dropped.Load() {
		return akierr.New(akierr.KindNotFound, "collection.delete", "collection has been dropped")
	}
	if _, err := c.w.Append(model.EntryDelete, id, model.Document{}); err != nil {
		return err
	}
	if err := c.idx.SoftDelete(id); err != nil {
		return err
	}
	c.mu.Lock()
	c.deletedIDs[id] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Search validates and executes req through the query planner, rejecting
// new calls once the collection has started dropping (drop sequence step 2:
// "drain in-flight queries").
func (c *Collection) Search(ctx context.Context, req model.SearchRequest) ([]model.SearchHit, error) {
	if c.dropped.Load() {
		return nil, akierr.New(akierr.KindNotFound, "collection.search", "collection has been dropped")
	}
	c.wg.Add(1)
	defer c.wg.Done()
	req.Collection = c.descriptor.Name
	return c.planner.Search(ctx, req)
}

// List paginates over the collection's live documents through the query
// planner.
func (c *Collection) List(ctx context.Context, req model.ListRequest) ([]model.Document, error) {
	if c.dropped.Load() {
		return nil, akierr.New(akierr.KindNotFound, "collection.list", "collection has been dropped")
	}
	c.wg.Add(1)
	defer c.wg.Done()
	req.Collection = c.descriptor.Name
	return c.planner.List(ctx, req)
}

// Close stops the background segment builder and closes the WAL's active
// segment. Stopping the builder runs one final seal of the WAL tail, which
// writes a segment to the object store and commits it to the manifest; the
// manifest, tier cache, and object store themselves stay open and outlive
// the handle.
func (c *Collection) Close(ctx context.Context) error {
	c.builder.Drain(ctx)
	return c.w.Close()
}

// Drop permanently destroys the collection, in the five-step order spec.md
// §3 names: mark manifest deleted, drain in-flight queries, evict from hot
// tier, delete the object-store prefix, remove local metadata.
func (c *Collection) Drop(ctx context.Context) error {
	m, _, err := c.committer.Load(ctx, c.descriptor.Name)
	if err != nil {
		return err
	}
	keys := make([]tier.Key, 0, len(m.Segments))
	for _, d := range m.Segments {
		keys = append(keys, tier.Key{Collection: c.descriptor.Name, SegmentID: d.ID.String()})
	}

	// Step 1: mark manifest deleted.
	if _, err := c.committer.Mutate(ctx, c.descriptor.Name, func(cur manifest.Manifest) (manifest.Manifest, error) {
		return cur.WithDeleted(), nil
	}); err != nil {
		return err
	}

	// Step 2: drain in-flight queries. New calls are rejected from here on.
	c.dropped.Store(true)
	c.wg.Wait()

	// Step 3: evict from hot tier.
	if err := c.cache.DropCollection(ctx, c.descriptor.Name, keys); err != nil {
		return err
	}

	// Step 4: delete the object-store prefix, including the manifest itself.
	prefix := "collections/" + c.descriptor.Name + "/"
	objs, err := c.store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, o := range objs {
		if err := c.store.Delete(ctx, o.Key); err != nil {
			return err
		}
	}
	if err := c.store.Delete(ctx, manifest.Key(c.descriptor.Name)); err != nil {
		return err
	}

	// Step 5: remove local metadata (WAL). The warm-tier SQLite state is
	// shared across every collection the cache serves and was already
	// cleared for this collection's keys in step 3.
	c.builder.Drain(ctx)
	if err := c.w.Close(); err != nil {
		c.logger.Warn("collection.drop: closing wal failed", "collection", c.descriptor.Name, "error", err)
	}
	if err := os.RemoveAll(c.walDir); err != nil {
		c.logger.Warn("collection.drop: removing wal directory failed", "collection", c.descriptor.Name, "error", err)
	}
	return nil
}

// Compact merges sealed segments at or under compactThreshold bytes into
// one, dropping records tombstoned since they were sealed, then reclaims
// the live index's tombstoned nodes via a copy-on-write rebuild (the
// open question on rebuild-vs-blocking is decided explicitly: copy-on-write,
// since spec.md §4.3 already commits to a lock-free reader snapshot
// discipline a blocking rebuild would violate). Candidates pass through
// every state spec.md §3 names in order: Sealed -> Compacting (reserved
// up front) -> Archived (committed once the merged replacement is
// durable) -> removed (the final commit, once the Archived commit has
// landed).
func (c *Collection) Compact(ctx context.Context) error {
	m, _, err := c.committer.Load(ctx, c.descriptor.Name)
	if err != nil {
		return err
	}

	var candidates []manifest.SegmentDescriptor
	for _, d := range m.Segments {
		if d.State == segment.StateSealed && d.SizeBytes <= c.compactThreshold {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) < 2 {
		if compactor, ok := c.idx.(interface{ CompactTombstones() int }); ok {
			compactor.CompactTombstones()
		}
		return nil
	}

	if _, err := c.committer.Mutate(ctx, c.descriptor.Name, func(cur manifest.Manifest) (manifest.Manifest, error) {
		next := cur
		for _, cand := range candidates {
			var mutErr error
			next, mutErr = next.WithSegmentState(cand.ID, segment.StateCompacting)
			if mutErr != nil {
				return manifest.Manifest{}, mutErr
			}
		}
		return next, nil
	}); err != nil {
		return err
	}

	c.mu.Lock()
	tombstoned := make(map[model.DocumentId]struct{}, len(c.deletedIDs))
	for id := range c.deletedIDs {
		tombstoned[id] = struct{}{}
	}
	c.mu.Unlock()

	var vectors []model.Vector
	var ids []model.DocumentId
	var payloads []model.Payload
	var lsnLo, lsnHi model.LSN
	for i, d := range candidates {
		key := tier.Key{Collection: c.descriptor.Name, SegmentID: d.ID.String()}
		seg, _, err := c.cache.Get(ctx, key, d.ObjectKey, d.RecordCount)
		if err != nil {
			return err
		}
		if i == 0 || d.LSNLo < lsnLo {
			lsnLo = d.LSNLo
		}
		if d.LSNHi > lsnHi {
			lsnHi = d.LSNHi
		}
		for j, id := range seg.IDs {
			if _, dead := tombstoned[id]; dead {
				continue
			}
			vectors = append(vectors, seg.Vectors[j])
			ids = append(ids, id)
			if j < len(seg.Payloads) {
				payloads = append(payloads, seg.Payloads[j])
			} else {
				payloads = append(payloads, nil)
			}
		}
	}

	merged := segment.Segment{
		ID:        segment.NewID(),
		LSNLo:     lsnLo,
		LSNHi:     lsnHi,
		Dimension: c.descriptor.VectorDim,
		Distance:  c.descriptor.Distance,
		Vectors:   vectors,
		IDs:       ids,
		Payloads:  payloads,
	}
	raw, err := segment.Encode(merged, segment.DefaultCompressionLevel)
	if err != nil {
		return err
	}
	objectKey := merged.ID.String()
	if _, err := c.store.Put(ctx, segment.ObjectKey(c.descriptor.Name, objectKey), raw, ""); err != nil {
		return akierr.Wrap(akierr.KindTransient, "collection.compact", "put merged segment", err)
	}

	// The merged segment is durable at this point, but candidates are
	// transitioned to Archived (not removed outright) before the
	// superseding descriptor is committed: if the process crashes between
	// this commit and the next, the candidates' records are still
	// reachable (via internal/query's archived-segment brute-force fan-out)
	// even though Open no longer loads them into the live index (spec.md
	// §3's one-way Active->Sealed->Compacting->Archived state machine).
	if _, err := c.committer.Mutate(ctx, c.descriptor.Name, func(cur manifest.Manifest) (manifest.Manifest, error) {
		next := cur
		for _, cand := range candidates {
			var mutErr error
			next, mutErr = next.WithSegmentState(cand.ID, segment.StateArchived)
			if mutErr != nil {
				return manifest.Manifest{}, mutErr
			}
		}
		return next, nil
	}); err != nil {
		return err
	}

	if _, err := c.committer.Mutate(ctx, c.descriptor.Name, func(cur manifest.Manifest) (manifest.Manifest, error) {
		next := cur
		for _, cand := range candidates {
			next = next.WithSegmentRemoved(cand.ID)
		}
		next = next.WithSegmentAdded(manifest.SegmentDescriptor{
			ID:          merged.ID,
			State:       segment.StateSealed,
			LSNLo:       merged.LSNLo,
			LSNHi:       merged.LSNHi,
			RecordCount: merged.RecordCount(),
			ObjectKey:   objectKey,
			SizeBytes:   uint64(len(raw)),
		})
		return next, nil
	}); err != nil {
		return err
	}

	for _, cand := range candidates {
		oldKey := tier.Key{Collection: c.descriptor.Name, SegmentID: cand.ID.String()}
		if err := c.cache.DropCollection(ctx, c.descriptor.Name, []tier.Key{oldKey}); err != nil {
			c.logger.Warn("collection.compact: evicting superseded segment failed", "segment_id", cand.ID, "error", err)
		}
	}

	if compactor, ok := c.idx.(interface{ CompactTombstones() int }); ok {
		reclaimed := compactor.CompactTombstones()
		c.logger.Info("collection.compact: reclaimed tombstoned nodes", "collection", c.descriptor.Name, "count", reclaimed)
	}
	return nil
}

// WALDirFor derives a collection's WAL directory under root, mirroring the
// on-disk layout note in spec.md §6 ("wal/<stream_id>/<base_lsn>.log"), so
// callers assembling Options.WALDir don't duplicate the naming convention.
func WALDirFor(root, collection string) string {
	return filepath.Join(root, "wal", collection)
}
