package wal

import (
	"math"
	"sync/atomic"
)

// Stats tracks cumulative WAL activity with saturating addition (P8): byte
// and entry counters never wrap past math.MaxUint64, they clamp.
type Stats struct {
	entriesAppended atomic.Uint64
	bytesAppended   atomic.Uint64
	entriesSkipped  atomic.Uint64 // CRC failures dropped during replay
}

func (s *Stats) addEntries(n uint64) { saturatingAdd(&s.entriesAppended, n) }
func (s *Stats) addBytes(n uint64)   { saturatingAdd(&s.bytesAppended, n) }
func (s *Stats) addSkipped(n uint64) { saturatingAdd(&s.entriesSkipped, n) }

// EntriesAppended returns the saturating count of successfully appended entries.
func (s *Stats) EntriesAppended() uint64 { return s.entriesAppended.Load() }

// BytesAppended returns the saturating count of bytes written to segment files.
func (s *Stats) BytesAppended() uint64 { return s.bytesAppended.Load() }

// EntriesSkipped returns the saturating count of entries dropped during
// replay due to CRC verification failure.
func (s *Stats) EntriesSkipped() uint64 { return s.entriesSkipped.Load() }

func saturatingAdd(counter *atomic.Uint64, n uint64) {
	for {
		cur := counter.Load()
		sum := cur + n
		if sum < cur { // overflow: clamp instead of wrapping
			sum = math.MaxUint64
		}
		if counter.CompareAndSwap(cur, sum) {
			return
		}
	}
}
