// Package segment implements the self-describing, checksummed binary
// segment container (spec.md §4.2): header, compressed vector/payload
// blocks, an uncompressed metadata block, and a trailing CRC32.
package segment

import (
	"github.com/google/uuid"

	"github.com/akidb/akidb/internal/model"
)

// Magic is the 4-byte ASCII segment magic (spec.md §6).
const Magic = "SEG1"

// Version is the current on-disk format version.
const Version uint32 = 1

// ID is the segment's u128 identifier, represented as a 16-byte UUID —
// the natural Go encoding of a 128-bit value (spec.md §3).
type ID = uuid.UUID

// NewID generates a fresh segment identifier.
func NewID() ID { return uuid.New() }

// State is the one-way segment lifecycle (spec.md §3):
// Active → Sealed → Compacting → Archived.
type State uint8

const (
	StateActive State = iota
	StateSealed
	StateCompacting
	StateArchived
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSealed:
		return "sealed"
	case StateCompacting:
		return "compacting"
	case StateArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal one-way
// transition (I5: once sealed, bytes are immutable — nothing transitions
// backward).
func (s State) CanTransition(next State) bool {
	switch s {
	case StateActive:
		return next == StateSealed
	case StateSealed:
		return next == StateCompacting
	case StateCompacting:
		return next == StateArchived
	default:
		return false
	}
}

// Segment is the immutable tuple from spec.md §3, decoded form. Once
// sealed, the byte representation of a Segment never changes (I5) — a
// Segment value in memory is always a fresh decode of immutable bytes, not
// a live mutable buffer.
type Segment struct {
	ID          ID
	LSNLo       model.LSN
	LSNHi       model.LSN
	Dimension   uint32
	Distance    model.DistanceMetric
	Vectors     []model.Vector // length == RecordCount, each len == Dimension
	IDs         []model.DocumentId
	Payloads    []model.Payload // optional: nil or length == RecordCount
	Metadata    []byte          // optional, uncompressed structured metadata
}

// RecordCount returns the number of vectors in the segment.
func (s Segment) RecordCount() uint64 { return uint64(len(s.Vectors)) }
