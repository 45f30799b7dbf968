package segment

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/manifest"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/objectstore"
	"github.com/akidb/akidb/internal/wal"
)

// DefaultPollInterval and DefaultBatchSize are the seal-worker defaults
// absent an explicit override.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 10000
)

// walSource is the narrow capability Builder consumes from internal/wal,
// kept minimal so tests can fake it without standing up a real log file.
type walSource interface {
	Replay(fromLSN model.LSN) ([]model.Entry, error)
	Truncate(upToLSN model.LSN) error
}

// Builder seals WAL entries into immutable segments on a poll loop, adapted
// from the teacher's OutboxWorker poll/batch/flush/drain-on-shutdown shape
// (internal/search/outbox.go): here the "outbox" is the WAL's unsealed
// tail and the "index sync target" is the object store plus manifest
// instead of Qdrant.
type Builder struct {
	wal        walSource
	store      objectstore.Store
	committer  *manifest.Committer
	collection string
	dim        uint32
	distance   model.DistanceMetric
	level      CompressionLevel
	logger     *slog.Logger

	pollInterval time.Duration
	batchSize    int

	started    atomic.Bool
	cancelLoop context.CancelFunc
	done       chan struct{}
	once       sync.Once
	drainOnce  sync.Once
	drainCh    chan context.Context

	mu            sync.Mutex
	lastSealedLSN model.LSN
}

// NewBuilder constructs a Builder over one collection's WAL and object
// store. lastSealedLSN should be the highest LSNHi already recorded in the
// collection's manifest (0 if the collection has no segments yet).
func NewBuilder(w walSource, store objectstore.Store, committer *manifest.Committer, collection string, dim uint32, distance model.DistanceMetric, level CompressionLevel, lastSealedLSN model.LSN, pollInterval time.Duration, batchSize int, logger *slog.Logger) *Builder {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Builder{
		wal:           w,
		store:         store,
		committer:     committer,
		collection:    collection,
		dim:           dim,
		distance:      distance,
		level:         level,
		logger:        logger,
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		lastSealedLSN: lastSealedLSN,
		done:          make(chan struct{}),
		drainCh:       make(chan context.Context, 1),
	}
}

// Start begins the background seal loop. Safe to call only once;
// subsequent calls are no-ops and log a warning.
func (b *Builder) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		b.logger.Warn("segment builder: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	b.cancelLoop = cancel
	go b.pollLoop(loopCtx)
}

// Drain signals the seal loop to stop, runs one final Seal (at most one
// batch of pending entries), and blocks until done or ctx expires. Safe to call multiple times; only the
// first call triggers the drain.
func (b *Builder) Drain(ctx context.Context) {
	b.drainOnce.Do(func() {
		sendCtx, sendCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		select {
		case b.drainCh <- ctx:
		case <-sendCtx.Done():
			b.logger.Warn("segment builder: drain context channel busy, final seal will use fallback timeout")
		}
		sendCancel()
		if b.cancelLoop != nil {
			b.cancelLoop()
		}
	})
	select {
	case <-b.done:
	case <-ctx.Done():
		b.logger.Warn("segment builder: drain timed out")
	}
}

func (b *Builder) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			var drainCtx context.Context
			select {
			case drainCtx = <-b.drainCh:
			default:
			}
			if drainCtx != nil {
				b.sealOnce(drainCtx)
			} else {
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				b.sealOnce(fallbackCtx)
				cancel()
			}
			b.once.Do(func() { close(b.done) })
			return
		case <-ticker.C:
			sealCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			b.sealOnce(sealCtx)
			cancel()
		}
	}
}

func (b *Builder) sealOnce(ctx context.Context) {
	if err := b.Seal(ctx); err != nil {
		b.logger.Error("segment builder: seal failed", "collection", b.collection, "error", err)
	}
}

// Seal seals exactly one batch of unsealed WAL entries into a segment, if
// any are pending, committing the new descriptor to the manifest and
// truncating the WAL prefix the new segment now durably covers. It is safe
// to call concurrently with the poll loop (e.g. from tests) since each call
// holds the builder's lock for its whole run, so concurrent calls seal one
// after the other.
func (b *Builder) Seal(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fromLSN := b.lastSealedLSN + 1

	entries, err := b.wal.Replay(fromLSN)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > b.batchSize {
		entries = entries[:b.batchSize]
	}

	live := make(map[model.DocumentId]model.Document)
	order := make([]model.DocumentId, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case model.EntryPut:
			if _, existed := live[e.Doc.ID]; !existed {
				order = append(order, e.Doc.ID)
			}
			live[e.Doc.ID] = e.Doc
		case model.EntryDelete, model.EntryTombstone:
			delete(live, e.DocID)
		}
	}

	highWater := entries[len(entries)-1].LSN

	if len(live) > 0 {
		vectors := make([]model.Vector, 0, len(live))
		ids := make([]model.DocumentId, 0, len(live))
		payloads := make([]model.Payload, 0, len(live))
		for _, id := range order {
			doc, ok := live[id]
			if !ok {
				continue
			}
			vectors = append(vectors, doc.Vector)
			ids = append(ids, doc.ID)
			payloads = append(payloads, doc.Payload)
		}

		seg := Segment{
			ID:        NewID(),
			LSNLo:     entries[0].LSN,
			LSNHi:     highWater,
			Dimension: b.dim,
			Distance:  b.distance,
			Vectors:   vectors,
			IDs:       ids,
			Payloads:  payloads,
		}
		raw, err := Encode(seg, b.level)
		if err != nil {
			return err
		}
		objectKey := seg.ID.String()
		storeKey := ObjectKey(b.collection, objectKey)
		if _, err := b.store.Put(ctx, storeKey, raw, ""); err != nil {
			return akierr.Wrap(akierr.KindTransient, "segment.builder", "put sealed segment", err)
		}

		if _, err := b.committer.Mutate(ctx, b.collection, func(m manifest.Manifest) (manifest.Manifest, error) {
			return m.WithSegmentAdded(manifest.SegmentDescriptor{
				ID:          seg.ID,
				State:       StateSealed,
				LSNLo:       seg.LSNLo,
				LSNHi:       seg.LSNHi,
				RecordCount: seg.RecordCount(),
				ObjectKey:   objectKey,
				SizeBytes:   uint64(len(raw)),
			}), nil
		}); err != nil {
			return err
		}
		b.logger.Info("segment builder: sealed segment", "collection", b.collection, "segment_id", seg.ID, "records", seg.RecordCount())
	}

	if err := b.wal.Truncate(highWater); err != nil {
		b.logger.Warn("segment builder: truncate after seal failed", "collection", b.collection, "error", err)
	}

	b.lastSealedLSN = highWater
	return nil
}

// ObjectKey builds the object-store key for a segment's object name within
// collection, matching the convention internal/tier's cold fetcher uses.
func ObjectKey(collection, objectKey string) string {
	return "collections/" + collection + "/segments/" + objectKey
}
