// Package tier implements the hot/warm/cold cache fronting sealed segments
// (spec.md §4.5): an in-memory LRU of decoded segments, a local SQLite
// metadata+bloom layer that answers existence checks without a network
// round-trip, and the object store as the source of truth. Concurrent cold
// fetches for the same segment coalesce behind a single in-flight call
// (spec.md "Backpressure", P10).
package tier

import "time"

// State is a segment's current tier (spec.md §3 "Tier state per
// collection/segment"). Transitions are driven by access policy, never by
// user-visible operations.
type State uint8

const (
	StateCold State = iota
	StateWarm
	StateHot
)

func (s State) String() string {
	switch s {
	case StateHot:
		return "hot"
	case StateWarm:
		return "warm"
	default:
		return "cold"
	}
}

// Key identifies one cached segment within one collection.
type Key struct {
	Collection string
	SegmentID  string
}

// AccessInfo tracks a hot entry's last-access time and cumulative access
// count (spec.md §4.5).
type AccessInfo struct {
	LastAccess time.Time
	Count      int
}

// Policy decides promotion/demotion thresholds (spec.md §6 config keys
// tier.hot_max_bytes, tier.promotion_threshold, plus a demotion window).
// Cache.Get promotes a segment once its cumulative access count, kept in
// warm metadata and never reset, reaches PromotionThreshold; Window is not
// read anywhere in this package.
type Policy struct {
	HotMaxBytes          int64
	PromotionThreshold   int // cumulative accesses to promote warm/cold -> hot
	Window               time.Duration
	DemotionIdleDuration time.Duration // hot entries idle longer than this become eviction-eligible
}

// DefaultPolicy returns conservative defaults suitable for local development.
func DefaultPolicy() Policy {
	return Policy{
		HotMaxBytes:          256 << 20,
		PromotionThreshold:   3,
		Window:               time.Minute,
		DemotionIdleDuration: 5 * time.Minute,
	}
}
