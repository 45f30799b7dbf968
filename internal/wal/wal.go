// Package wal implements the per-collection append-only write-ahead log
// (spec.md §3, §4.1): LSN allocation, durable append, CRC-checked replay,
// and truncation of fully-sealed segments.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

const (
	magic   = "AKWL"
	version = uint32(1)

	// defaultRollBytes matches the ambient `wal.segment_roll_bytes` setting
	// (spec.md §6) absent an explicit override.
	defaultRollBytes = 64 << 20

	activeSuffix = ".log.active"
	sealedSuffix = ".log"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Config configures one collection's WAL stream.
type Config struct {
	Dir        string // wal/<stream_id> directory, created if absent
	StreamID   string
	RollBytes  int64 // segment roll threshold; DefaultRollBytes when <= 0
}

// DefaultRollBytes is the roll threshold used when Config.RollBytes is unset.
const DefaultRollBytes = defaultRollBytes

// WAL is a single collection's durable mutation log. One WAL owns exactly
// one LSN allocator and exactly one open (active) segment file at a time.
type WAL struct {
	dir       string
	streamID  string
	rollBytes int64
	logger    *slog.Logger

	mu          sync.Mutex
	current     *os.File
	currentPath string
	currentBase model.LSN
	segBytes    int64

	alloc *Allocator
	stats Stats
}

// Open resumes (or creates) the WAL stream rooted at cfg.Dir, replaying
// existing segments only far enough to recover the allocator's last LSN.
func Open(cfg Config, logger *slog.Logger) (*WAL, error) {
	if cfg.Dir == "" {
		return nil, akierr.New(akierr.KindInvalidInput, "wal.open", "dir must not be empty")
	}
	roll := cfg.RollBytes
	if roll <= 0 {
		roll = defaultRollBytes
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, akierr.Wrap(akierr.KindDurability, "wal.open", "create wal directory", err)
	}

	w := &WAL{
		dir:       cfg.Dir,
		streamID:  cfg.StreamID,
		rollBytes: roll,
		logger:    logger,
	}

	lastLSN, err := w.recoverLastLSN()
	if err != nil {
		return nil, err
	}
	w.alloc = NewAllocator(lastLSN)

	if err := w.openNewSegment(lastLSN + 1); err != nil {
		return nil, err
	}
	return w, nil
}

// Append durably records one mutation and returns its freshly allocated LSN.
// It does not return until the record (and, if a roll occurred, the prior
// segment) has been fsynced — a failed fsync surfaces as a Durability error
// and the entry is not considered committed.
func (w *WAL) Append(kind model.EntryKind, docID model.DocumentId, doc model.Document) (model.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn, err := w.alloc.Next()
	if err != nil {
		return 0, err
	}

	body, err := encodeEntryBody(lsn, kind, docID, doc)
	if err != nil {
		return 0, err
	}

	if err := w.writeRecord(body); err != nil {
		return 0, err
	}
	if err := w.current.Sync(); err != nil {
		return 0, akierr.Wrap(akierr.KindDurability, "wal.append", "fsync", err)
	}

	w.stats.addEntries(1)
	w.stats.addBytes(uint64(4 + 4 + len(body)))

	if w.segBytes >= w.rollBytes {
		if err := w.openNewSegment(lsn + 1); err != nil {
			return lsn, err
		}
	}
	return lsn, nil
}

// writeRecord appends the len|crc32|payload framing (spec.md §4.1) to the
// current segment without syncing.
func (w *WAL) writeRecord(body []byte) error {
	var head [8]byte
	binary.LittleEndian.PutUint32(head[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(head[4:8], crc32.Checksum(body, crcTable))

	if _, err := w.current.Write(head[:]); err != nil {
		return akierr.Wrap(akierr.KindDurability, "wal.append", "write record header", err)
	}
	if _, err := w.current.Write(body); err != nil {
		return akierr.Wrap(akierr.KindDurability, "wal.append", "write record body", err)
	}
	w.segBytes += int64(len(head) + len(body))
	return nil
}

// openNewSegment rolls the current segment (fsync, close, atomic rename to
// its sealed name) and opens a fresh one whose header records baseLSN.
func (w *WAL) openNewSegment(baseLSN model.LSN) error {
	if w.current != nil {
		if err := w.current.Sync(); err != nil {
			return akierr.Wrap(akierr.KindDurability, "wal.roll", "fsync before roll", err)
		}
		if err := w.current.Close(); err != nil {
			return akierr.Wrap(akierr.KindDurability, "wal.roll", "close before roll", err)
		}
		sealedPath := w.sealedPath(w.currentBase)
		if err := os.Rename(w.currentPath, sealedPath); err != nil {
			return akierr.Wrap(akierr.KindDurability, "wal.roll", "rename sealed segment", err)
		}
	}

	path := w.activePath(baseLSN)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return akierr.Wrap(akierr.KindDurability, "wal.roll", "open new segment", err)
	}

	var hdr [4 + 4 + 8]byte
	copy(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], version)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(baseLSN))
	if _, err := f.Write(hdr[:]); err != nil {
		_ = f.Close()
		return akierr.Wrap(akierr.KindDurability, "wal.roll", "write segment header", err)
	}

	w.current = f
	w.currentPath = path
	w.currentBase = baseLSN
	w.segBytes = int64(len(hdr))
	return nil
}

// Close syncs and closes the active segment, sealing it.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	if err := w.current.Sync(); err != nil {
		w.logger.Warn("wal: final sync failed", "stream", w.streamID, "error", err)
	}
	if err := w.current.Close(); err != nil {
		return akierr.Wrap(akierr.KindDurability, "wal.close", "close active segment", err)
	}
	if err := os.Rename(w.currentPath, w.sealedPath(w.currentBase)); err != nil {
		return akierr.Wrap(akierr.KindDurability, "wal.close", "seal active segment", err)
	}
	w.current = nil
	return nil
}

// Stats returns the WAL's saturating activity counters.
func (w *WAL) Stats() *Stats { return &w.stats }

func (w *WAL) activePath(base model.LSN) string {
	return filepath.Join(w.dir, fmt.Sprintf("%020d%s", uint64(base), activeSuffix))
}

func (w *WAL) sealedPath(base model.LSN) string {
	return filepath.Join(w.dir, fmt.Sprintf("%020d%s", uint64(base), sealedSuffix))
}
