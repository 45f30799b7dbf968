package model

// LSN (Log Sequence Number) totally orders mutations within one WAL stream
// (spec.md §3). It is strictly monotonically increasing; advancing past
// math.MaxUint64 is a fatal condition (I4), enforced by internal/wal's
// allocator, not by this type.
type LSN uint64

// MaxLSN is the last representable LSN; allocating past it is fatal.
const MaxLSN LSN = ^LSN(0)

// EntryKind discriminates the three WAL mutation kinds (spec.md §3).
type EntryKind uint8

const (
	EntryPut EntryKind = iota
	EntryDelete
	EntryTombstone
)

func (k EntryKind) String() string {
	switch k {
	case EntryPut:
		return "put"
	case EntryDelete:
		return "delete"
	case EntryTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// Entry is one WAL record after decoding: an assigned LSN, the owning
// collection, the mutation kind, and its body. For EntryPut, Doc holds the
// upserted document; for EntryDelete/EntryTombstone, DocID identifies the
// affected document and Doc is the zero value.
type Entry struct {
	LSN        LSN
	Collection string
	Kind       EntryKind
	DocID      DocumentId
	Doc        Document
}
