// Package akidb is the public entry point for the vector storage and
// indexing core (spec.md §1-§2). It consumes only an object-store
// implementation, a clock, and a logger — transport, authentication, quota
// accounting, embedding generation, and packaging are deliberately left to
// callers that embed this package. The import graph enforces a strict
// no-cycle rule: akidb (root) imports internal/*, but internal/* never
// imports akidb.
package akidb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/collection"
	"github.com/akidb/akidb/internal/manifest"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/objectstore"
	"github.com/akidb/akidb/internal/segment"
	"github.com/akidb/akidb/internal/telemetry"
	"github.com/akidb/akidb/internal/tier"
)

// DB is the shared handle over one object store: a hot-tier cache and
// manifest committer common to every collection it serves, plus a registry
// of collections currently open in this process. A DB has no required
// relationship to "one process, one DB" — callers may open several DBs
// against independent buckets, or share one tier.Cache across several DBs
// pointed at the same bucket via WithSharedCache.
type DB struct {
	store     objectstore.Store
	cache     *tier.Cache
	committer *manifest.Committer
	logger    *slog.Logger
	opts      resolvedOptions
	walRoot   string

	shutdown telemetry.Shutdown

	mu          sync.Mutex
	collections map[string]*Collection
}

// New wires a DB around store: opens (or reuses, via WithSharedCache) the
// hot/warm/cold tier cache, constructs the manifest committer, and starts
// an in-process telemetry meter provider reporting both subsystems'
// counters. walRoot is the local directory WAL segments for every opened
// collection are written under (spec.md §6's "wal/<stream_id>/<base_lsn>.log"
// layout).
func New(ctx context.Context, store objectstore.Store, walRoot string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	shutdown, err := telemetry.Init(ctx, "akidb", o.version)
	if err != nil {
		return nil, fmt.Errorf("akidb: init telemetry: %w", err)
	}

	cache := o.cache
	if cache == nil {
		cache, err = tier.Open(ctx, store, o.warmDBPath, o.policy(), o.clock, o.logger)
		if err != nil {
			return nil, fmt.Errorf("akidb: open tier cache: %w", err)
		}
	}
	telemetry.RegisterTierMetrics(cache)

	committer := manifest.NewCommitter(store).WithMaxRetries(o.manifestMaxRetries())
	telemetry.RegisterManifestMetrics(committer)

	return &DB{
		store:       store,
		cache:       cache,
		committer:   committer,
		logger:      o.logger,
		opts:        o,
		walRoot:     walRoot,
		shutdown:    shutdown,
		collections: make(map[string]*Collection),
	}, nil
}

// CreateCollection creates a new, empty collection and opens it. It fails
// with akierr.KindConflict if a manifest already exists for name.
func (db *DB) CreateCollection(ctx context.Context, desc CollectionDescriptor) (*Collection, error) {
	internalDesc := desc.toInternal()
	if err := internalDesc.Validate(); err != nil {
		return nil, akierr.Wrap(akierr.KindInvalidInput, "akidb.createcollection", "invalid descriptor", err)
	}

	if _, _, err := db.committer.Load(ctx, internalDesc.Name); err == nil {
		return nil, akierr.New(akierr.KindConflict, "akidb.createcollection", "collection already exists: "+internalDesc.Name)
	} else if !akierr.Is(err, akierr.KindNotFound) {
		return nil, err
	}

	return db.open(ctx, internalDesc)
}

// Collection opens an existing collection by name, reconstructing its live
// index from the manifest and any unsealed WAL tail (internal/collection.Open).
// If the collection is already open in this DB, the existing handle is
// returned. desc must match the collection's recorded identity
// (name/vector_dim/distance never change after creation, I2). This package
// has no call that reads them back, so callers supply the values the
// collection was created with.
func (db *DB) Collection(ctx context.Context, desc CollectionDescriptor) (*Collection, error) {
	db.mu.Lock()
	if c, ok := db.collections[desc.Name]; ok {
		db.mu.Unlock()
		return c, nil
	}
	db.mu.Unlock()

	internalDesc := desc.toInternal()
	if err := internalDesc.Validate(); err != nil {
		return nil, akierr.Wrap(akierr.KindInvalidInput, "akidb.collection", "invalid descriptor", err)
	}
	return db.open(ctx, internalDesc)
}

func (db *DB) open(ctx context.Context, desc model.CollectionDescriptor) (*Collection, error) {
	inner, err := collection.Open(ctx, collection.Options{
		Descriptor:       desc,
		Store:            db.store,
		Cache:            db.cache,
		Committer:        db.committer,
		Logger:           db.logger,
		WALDir:           collection.WALDirFor(db.walRoot, desc.Name),
		WALRollBytes:     db.opts.walRollBytes(),
		CompressionLevel: segment.CompressionLevel(db.opts.compressionLevel()),
		SealPollInterval: db.opts.sealPollInterval(),
		SealBatchSize:    db.opts.sealBatchSize(),
	})
	if err != nil {
		return nil, err
	}

	c := &Collection{inner: inner, name: desc.Name}
	db.mu.Lock()
	db.collections[desc.Name] = c
	db.mu.Unlock()
	return c, nil
}

// DropCollection permanently destroys a collection already open in this DB:
// its manifest, segments, hot-tier residency, and local WAL state (the
// five-step sequence in internal/collection.Collection.Drop). A collection
// must be opened via Collection or CreateCollection before it can be
// dropped, since drop needs the live handle's WAL and in-flight-query
// bookkeeping, not just the manifest.
func (db *DB) DropCollection(ctx context.Context, name string) error {
	db.mu.Lock()
	c, open := db.collections[name]
	delete(db.collections, name)
	db.mu.Unlock()

	if !open {
		return akierr.New(akierr.KindNotFound, "akidb.dropcollection", "collection not open: "+name)
	}
	return c.inner.Drop(ctx)
}

// Close stops every open collection's background segment builder and
// releases the DB's telemetry provider. It does not close the underlying
// object store or shared tier cache — those are caller-owned collaborators
// that may outlive this DB (spec.md §1).
func (db *DB) Close(ctx context.Context) error {
	db.mu.Lock()
	collections := make([]*Collection, 0, len(db.collections))
	for _, c := range db.collections {
		collections = append(collections, c)
	}
	db.collections = make(map[string]*Collection)
	db.mu.Unlock()

	var firstErr error
	for _, c := range collections {
		if err := c.inner.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if db.shutdown != nil {
		if err := db.shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WALRootFor joins root with the conventional wal/ subdirectory, matching
// internal/collection.WALDirFor's own layout convention.
func WALRootFor(root string) string {
	return filepath.Join(root, "wal")
}
