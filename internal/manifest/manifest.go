// Package manifest implements the versioned, per-collection segment catalog
// (spec.md §4.4): a JSON record persisted to the object store under
// collections/<name>/manifest.json, committed by conditional PUT with
// bounded-retry optimistic locking (I7).
package manifest

import (
	"encoding/json"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
	"github.com/akidb/akidb/internal/segment"
)

// SegmentDescriptor is one entry in a manifest's segment list: everything
// the query path and compactor need without opening the segment itself.
type SegmentDescriptor struct {
	ID          segment.ID    `json:"id"`
	State       segment.State `json:"state"`
	LSNLo       model.LSN     `json:"lsn_lo"`
	LSNHi       model.LSN     `json:"lsn_hi"`
	RecordCount uint64        `json:"record_count"`
	ObjectKey   string        `json:"object_key"`
	SizeBytes   uint64        `json:"size_bytes"`
}

// Manifest is the decoded form of collections/<name>/manifest.json
// (spec.md §4.4). Version is the optimistic-lock token: every write
// specifies the version it read, and the store rejects the write if the
// object has moved on.
type Manifest struct {
	Collection   string              `json:"collection"`
	Version      uint64              `json:"version"`
	Segments     []SegmentDescriptor `json:"segments"`
	TotalVectors uint64              `json:"total_vectors"`
	Deleted      bool                `json:"deleted"`
}

// New returns an empty version-0 manifest for a freshly created collection.
func New(collection string) Manifest {
	return Manifest{Collection: collection, Version: 0}
}

// Key is the object-store key a collection's manifest lives under.
func Key(collection string) string {
	return "collections/" + collection + "/manifest.json"
}

// Clone returns a deep copy, so callers can mutate a working copy without
// aliasing segment slices across retry attempts.
func (m Manifest) Clone() Manifest {
	out := m
	out.Segments = make([]SegmentDescriptor, len(m.Segments))
	copy(out.Segments, m.Segments)
	return out
}

// WithSegmentAdded returns a copy of m with descriptor appended (segment
// seal) and TotalVectors advanced by a saturating add (I6).
func (m Manifest) WithSegmentAdded(d SegmentDescriptor) Manifest {
	out := m.Clone()
	out.Segments = append(out.Segments, d)
	out.TotalVectors = saturatingAddU64(out.TotalVectors, d.RecordCount)
	return out
}

// WithSegmentState returns a copy of m with the named segment transitioned
// to next, validated against segment.State.CanTransition.
func (m Manifest) WithSegmentState(id segment.ID, next segment.State) (Manifest, error) {
	out := m.Clone()
	for i := range out.Segments {
		if out.Segments[i].ID != id {
			continue
		}
		if !out.Segments[i].State.CanTransition(next) {
			return Manifest{}, akierr.New(akierr.KindInvalidInput, "manifest.transition",
				"illegal segment state transition "+out.Segments[i].State.String()+" -> "+next.String())
		}
		out.Segments[i].State = next
		return out, nil
	}
	return Manifest{}, akierr.New(akierr.KindNotFound, "manifest.transition", "segment not found in manifest")
}

// WithSegmentRemoved returns a copy of m with the named segment removed
// (archive) and TotalVectors reduced accordingly.
func (m Manifest) WithSegmentRemoved(id segment.ID) Manifest {
	out := m.Clone()
	filtered := out.Segments[:0]
	for _, d := range out.Segments {
		if d.ID == id {
			if out.TotalVectors >= d.RecordCount {
				out.TotalVectors -= d.RecordCount
			} else {
				out.TotalVectors = 0
			}
			continue
		}
		filtered = append(filtered, d)
	}
	out.Segments = filtered
	return out
}

// WithDeleted returns a copy of m marked deleted (drop sequence step 1).
func (m Manifest) WithDeleted() Manifest {
	out := m.Clone()
	out.Deleted = true
	return out
}

func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

func encode(m Manifest) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, akierr.Wrap(akierr.KindInvalidInput, "manifest.encode", "marshal manifest", err)
	}
	return raw, nil
}

func decode(raw []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, akierr.Wrap(akierr.KindCorrupt, "manifest.decode", "unmarshal manifest", err)
	}
	return m, nil
}
