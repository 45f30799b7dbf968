package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// segmentFile is one on-disk WAL file, sealed or still active.
type segmentFile struct {
	path    string
	baseLSN model.LSN
	active  bool
}

func (w *WAL) listSegments() ([]segmentFile, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, akierr.Wrap(akierr.KindDurability, "wal.list", "read wal directory", err)
	}

	var out []segmentFile
	for _, e := range entries {
		name := e.Name()
		var base uint64
		var active bool
		switch {
		case strings.HasSuffix(name, activeSuffix):
			base, err = strconv.ParseUint(strings.TrimSuffix(name, activeSuffix), 10, 64)
			active = true
		case strings.HasSuffix(name, sealedSuffix):
			base, err = strconv.ParseUint(strings.TrimSuffix(name, sealedSuffix), 10, 64)
		default:
			continue
		}
		if err != nil {
			continue // not one of our files
		}
		out = append(out, segmentFile{
			path:    filepath.Join(w.dir, name),
			baseLSN: model.LSN(base),
			active:  active,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].baseLSN < out[j].baseLSN })
	return out, nil
}

// recoverLastLSN scans existing segments and returns the highest LSN found
// across every valid record, or 0 if the stream is empty.
func (w *WAL) recoverLastLSN() (model.LSN, error) {
	segments, err := w.listSegments()
	if err != nil {
		return 0, err
	}
	var last model.LSN
	for _, seg := range segments {
		entries, err := readSegmentEntries(seg.path, &w.stats)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			if e.LSN > last {
				last = e.LSN
			}
		}
	}
	return last, nil
}

// Replay yields every entry with LSN >= fromLSN across all segments, in LSN
// order, skipping any record whose CRC fails verification (spec.md §4.1).
// Replay is restartable: it re-reads from disk each call and holds no
// cursor state.
func (w *WAL) Replay(fromLSN model.LSN) ([]model.Entry, error) {
	w.mu.Lock()
	if w.current != nil {
		if err := w.current.Sync(); err != nil {
			w.mu.Unlock()
			return nil, akierr.Wrap(akierr.KindDurability, "wal.replay", "sync active segment", err)
		}
	}
	w.mu.Unlock()

	segments, err := w.listSegments()
	if err != nil {
		return nil, err
	}

	var out []model.Entry
	for _, seg := range segments {
		entries, err := readSegmentEntries(seg.path, &w.stats)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			e.Collection = w.streamID
			if e.LSN >= fromLSN {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// readSegmentEntries reads every well-formed entry from one segment file,
// skipping CRC-failed or truncated-length records rather than aborting
// (spec.md §4.1 replay contract). A header mismatch is fatal for that file
// since framing cannot be trusted at all.
func readSegmentEntries(path string, stats *Stats) ([]model.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, akierr.Wrap(akierr.KindDurability, "wal.replay", "open segment", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var hdr [4 + 4 + 8]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil // empty/truncated header: nothing recoverable
		}
		return nil, akierr.Wrap(akierr.KindCorrupt, "wal.replay", "read segment header", err)
	}
	if string(hdr[0:4]) != magic {
		return nil, akierr.New(akierr.KindCorrupt, "wal.replay", "bad segment magic")
	}
	if binary.LittleEndian.Uint32(hdr[4:8]) != version {
		return nil, akierr.New(akierr.KindCorrupt, "wal.replay", "unsupported segment version")
	}

	var out []model.Entry
	for {
		var head [8]byte
		if _, err := io.ReadFull(f, head[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, akierr.Wrap(akierr.KindCorrupt, "wal.replay", "read record header", err)
		}
		bodyLen := binary.LittleEndian.Uint32(head[0:4])
		wantCRC := binary.LittleEndian.Uint32(head[4:8])

		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(f, body); err != nil {
			break // truncated final record: stop, nothing more to recover
		}

		if crc32.Checksum(body, crcTable) != wantCRC {
			stats.addSkipped(1)
			continue
		}

		entry, err := decodeEntryBody(body)
		if err != nil {
			stats.addSkipped(1)
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Truncate reclaims sealed segments whose every entry's LSN is <= upToLSN,
// deleting only a contiguous prefix so no hole ever forms in the logical
// LSN range still on disk.
func (w *WAL) Truncate(upToLSN model.LSN) error {
	segments, err := w.listSegments()
	if err != nil {
		return err
	}

	for _, seg := range segments {
		if seg.active {
			break // never reclaim the open segment
		}
		entries, err := readSegmentEntries(seg.path, &w.stats)
		if err != nil {
			return err
		}
		var maxLSN model.LSN
		for _, e := range entries {
			if e.LSN > maxLSN {
				maxLSN = e.LSN
			}
		}
		if len(entries) == 0 || maxLSN > upToLSN {
			break // this and every later segment must be kept
		}
		if err := os.Remove(seg.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return akierr.Wrap(akierr.KindDurability, "wal.truncate", "remove sealed segment", err)
		}
	}
	return nil
}
