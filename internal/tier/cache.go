package tier

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/akidb/akidb/internal/clock"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/objectstore"
	"github.com/akidb/akidb/internal/segment"
)

// Cache is the hot/warm/cold tier cache fronting sealed segments for one
// object store (spec.md §4.5). One Cache is shared across every collection
// it serves; per-collection state is addressed by Key.
type Cache struct {
	hot    *hotCache
	warm   *warmStore
	cold   *coldFetcher
	policy Policy
	clock  clock.Clock
	logger *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Open creates a Cache backed by store for cold reads and a local SQLite
// file at warmDBPath for warm metadata.
func Open(ctx context.Context, store objectstore.Store, warmDBPath string, policy Policy, clk clock.Clock, logger *slog.Logger) (*Cache, error) {
	warm, err := openWarmStore(ctx, warmDBPath)
	if err != nil {
		return nil, err
	}
	return &Cache{
		hot:    newHotCache(policy, logger),
		warm:   warm,
		cold:   newColdFetcher(store),
		policy: policy,
		clock:  clk,
		logger: logger,
	}, nil
}

// Get returns the decoded segment for key, fetching through warm metadata
// and the cold store as needed, and promoting into the hot tier once the
// segment's access count reaches the policy's PromotionThreshold. objectKey
// is the manifest-recorded object name to fetch on a miss.
func (c *Cache) Get(ctx context.Context, key Key, objectKey string, recordCount uint64) (*segment.Segment, State, error) {
	now := c.clock.Now()

	if seg, ok, err := c.hot.Get(key, now); err != nil {
		return nil, StateCold, err
	} else if ok {
		c.hits.Add(1)
		return seg, StateHot, nil
	}
	c.misses.Add(1)

	seg, size, err := c.cold.Fetch(ctx, key, objectKey)
	if err != nil {
		return nil, StateCold, err
	}

	meta, found, err := c.warm.Get(ctx, key)
	if err != nil {
		return nil, StateCold, err
	}
	accessCount := 1
	if found {
		accessCount = meta.AccessCount + 1
	}

	b := newBloom(max(1, int(recordCount)), 0.01)
	for _, id := range seg.IDs {
		b.Add(id[:])
	}
	if err := c.warm.Upsert(ctx, warmMeta{
		Collection:  key.Collection,
		SegmentID:   key.SegmentID,
		RecordCount: recordCount,
		LastAccess:  now,
		AccessCount: accessCount,
		BloomBits:   b.Bytes(),
		BloomK:      b.k,
	}); err != nil {
		return nil, StateCold, err
	}

	if accessCount >= c.policy.PromotionThreshold {
		if _, err := c.hot.Put(key, seg, size, now); err != nil {
			return nil, StateCold, err
		}
		return seg, StateHot, nil
	}
	return seg, StateWarm, nil
}

// MightContain answers an existence check using the warm tier's bloom
// filter without touching the object store, returning false (definitely
// absent) when no metadata has been recorded yet.
func (c *Cache) MightContain(ctx context.Context, key Key, docID model.DocumentId) (bool, error) {
	meta, found, err := c.warm.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return loadBloom(meta.BloomBits, meta.BloomK).MightContain(docID[:]), nil
}

// EvictIdle demotes hot entries idle past the policy window back to warm
// (spec.md §4.5 "Demotion"). The underlying bytes remain available in cold;
// this only evicts the in-memory copy.
func (c *Cache) EvictIdle() ([]Key, error) {
	return c.hot.EvictIdle(c.clock.Now())
}

// DropCollection removes every trace of collection from the hot and warm
// tiers (drop sequence steps 3 and 5; cold-tier object deletion is owned by
// the collection layer via objectstore directly, since this cache has no
// enumeration of a collection's segment keys without the manifest).
func (c *Cache) DropCollection(ctx context.Context, collection string, keys []Key) error {
	for _, k := range keys {
		if err := c.hot.Evict(k); err != nil {
			return err
		}
	}
	return c.warm.DeleteCollection(ctx, collection)
}

func (c *Cache) Close() error {
	return c.warm.Close()
}

// Hits returns the cumulative count of hot-tier hits served by Get.
func (c *Cache) Hits() uint64 { return c.hits.Load() }

// Misses returns the cumulative count of hot-tier misses (warm or cold
// fetches) served by Get.
func (c *Cache) Misses() uint64 { return c.misses.Load() }

// Len reports the current number of segments resident in the hot tier.
func (c *Cache) Len() int { return c.hot.Len() }
