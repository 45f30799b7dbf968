package manifest

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/objectstore"
)

// DefaultMaxRetries is the manifest.max_retries default (spec.md §4.4, §6).
const DefaultMaxRetries = 5

// DefaultBaseDelay and DefaultMaxDelay bound the exponential backoff between
// conflict retries, mirroring objectstore.WithRetry's shape.
const (
	DefaultBaseDelay = 10 * time.Millisecond
	DefaultMaxDelay  = 500 * time.Millisecond
)

// Committer owns reading and conditionally writing one collection's
// manifest against an object store (spec.md §4.4). It holds no manifest
// state itself: every call round-trips through the store so concurrent
// writers (other processes, other Committer instances) are always visible.
type Committer struct {
	store      objectstore.Store
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	conflictRetries atomic.Uint64
}

// NewCommitter returns a Committer with spec-mandated retry defaults.
func NewCommitter(store objectstore.Store) *Committer {
	return &Committer{
		store:      store,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
	}
}

// WithMaxRetries overrides the retry bound (manifest.max_retries config key).
func (c *Committer) WithMaxRetries(n int) *Committer {
	c.maxRetries = n
	return c
}

// etagOf looks up the current object-store version token for key via List,
// since Store.Get does not surface it directly. Returns "" if key is absent.
func (c *Committer) etagOf(ctx context.Context, key string) (string, error) {
	entries, err := c.store.List(ctx, key)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Version, nil
		}
	}
	return "", nil
}

// Load fetches and decodes the current manifest for collection, returning
// its object-store version token alongside the decoded value.
func (c *Committer) Load(ctx context.Context, collection string) (Manifest, string, error) {
	key := Key(collection)
	raw, err := c.store.Get(ctx, key, nil)
	if err != nil {
		return Manifest{}, "", err
	}
	m, err := decode(raw)
	if err != nil {
		return Manifest{}, "", err
	}
	etag, err := c.etagOf(ctx, key)
	if err != nil {
		return Manifest{}, "", err
	}
	return m, etag, nil
}

// Create persists a brand new manifest with an empty ifMatch. What happens
// when the key already exists depends on the store: MemStore overwrites it,
// while the S3, GCS, and Azure adapters treat an empty ifMatch as
// create-only-if-absent and fail with KindConflict. Callers Load first to
// check for an existing collection before calling Create.
func (c *Committer) Create(ctx context.Context, m Manifest) error {
	raw, err := encode(m)
	if err != nil {
		return err
	}
	_, err = c.store.Put(ctx, Key(m.Collection), raw, "")
	if err != nil {
		return err
	}
	return nil
}

// Mutate implements the optimistic-locking update loop (spec.md §4.4, I7):
// load the manifest, apply fn to obtain the new value, commit it
// conditional on the version just read. On a lost race (KindConflict) it
// reloads and retries fn against the fresh manifest, up to maxRetries times
// with jittered exponential backoff, matching P4's idempotent-reapply
// property. Exhaustion surfaces KindConflict.
func (c *Committer) Mutate(ctx context.Context, collection string, fn func(Manifest) (Manifest, error)) (Manifest, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.baseDelay, c.maxDelay, attempt); err != nil {
				return Manifest{}, err
			}
		}

		current, etag, err := c.Load(ctx, collection)
		if err != nil {
			return Manifest{}, err
		}

		next, err := fn(current)
		if err != nil {
			return Manifest{}, err
		}
		next.Version = current.Version + 1

		raw, err := encode(next)
		if err != nil {
			return Manifest{}, err
		}

		if _, err := c.store.Put(ctx, Key(collection), raw, etag); err != nil {
			if akierr.Is(err, akierr.KindConflict) {
				lastErr = err
				c.conflictRetries.Add(1)
				continue
			}
			return Manifest{}, err
		}
		return next, nil
	}
	return Manifest{}, akierr.Wrap(akierr.KindConflict, "manifest.mutate",
		"version stayed stale after max retries", lastErr)
}

// ConflictRetries returns the cumulative count of optimistic-lock conflicts
// Mutate has retried past.
func (c *Committer) ConflictRetries() uint64 { return c.conflictRetries.Load() }

func sleepBackoff(ctx context.Context, base, max time.Duration, attempt int) error {
	delay := base << (attempt - 1)
	if delay > max || delay <= 0 {
		delay = max
	}
	jittered := time.Duration(rand.Int64N(int64(delay) + 1))
	select {
	case <-time.After(jittered):
		return nil
	case <-ctx.Done():
		return akierr.Wrap(akierr.KindDeadline, "manifest.mutate", "context cancelled during retry backoff", ctx.Err())
	}
}
