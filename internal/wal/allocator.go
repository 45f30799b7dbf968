package wal

import (
	"sync/atomic"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// Allocator hands out strictly increasing LSNs for one stream (spec.md §3,
// §4.1). It never returns a duplicate: once it has allocated model.MaxLSN it
// fails every subsequent call fatally (I4) rather than wrap around.
type Allocator struct {
	last atomic.Uint64
}

// NewAllocator resumes an allocator from the last LSN known to have been
// allocated (0 if the stream has never been written to).
func NewAllocator(last model.LSN) *Allocator {
	a := &Allocator{}
	a.last.Store(uint64(last))
	return a
}

// Next returns a fresh LSN strictly greater than every LSN previously
// returned by this allocator (P1). Concurrent callers CAS against the same
// counter, so no two calls ever observe the same value.
func (a *Allocator) Next() (model.LSN, error) {
	for {
		cur := a.last.Load()
		if cur == uint64(model.MaxLSN) {
			return 0, akierr.New(akierr.KindFatal, "wal.allocator.next", "LSN space exhausted")
		}
		next := cur + 1
		if a.last.CompareAndSwap(cur, next) {
			return model.LSN(next), nil
		}
	}
}

// Last reports the most recently allocated LSN without advancing it.
func (a *Allocator) Last() model.LSN { return model.LSN(a.last.Load()) }
