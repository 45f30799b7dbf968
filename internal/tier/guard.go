package tier

import (
	"log/slog"
	"sync"
)

// guardedMu wraps a sync.Mutex so a panic inside the critical section never
// cascades into an unrecoverable lock (I11: "lock acquisition is lossless
// under lock poisoning"). Go's sync.Mutex has no native poisoning concept
// (unlike the languages this spec was written against, where a panic while
// holding a lock marks it permanently poisoned) — the risk here is the
// opposite failure mode: a panicking critical section that skips its
// deferred Unlock and wedges every future caller. withLock guarantees the
// mutex is always released and the panic is recovered, logged, and turned
// into an error so the caller can adopt the (possibly partially mutated)
// inner data and continue, rather than letting the panic disable the whole
// collection.
type guardedMu struct {
	mu     sync.Mutex
	logger *slog.Logger
}

func newGuardedMu(logger *slog.Logger) *guardedMu {
	return &guardedMu{logger: logger}
}

// withLock runs fn while holding the lock. If fn panics, the panic is
// recovered, a warning is logged, and the panic value is returned as an
// error — the lock is released either way and the caller's data structure
// remains usable for the next withLock call.
func (g *guardedMu) withLock(op string, fn func() error) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("tier: recovered panic under lock, adopting inner state", "op", op, "panic", r)
			err = recoveredPanicError(op, r)
		}
	}()
	return fn()
}
