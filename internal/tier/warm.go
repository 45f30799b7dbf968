package tier

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no cgo

	"github.com/akidb/akidb/internal/akierr"
)

// warmMeta is one row of the warm tier's local metadata: what the hot/cold
// tiers need to know about a segment without fetching its bytes.
type warmMeta struct {
	Collection  string
	SegmentID   string
	RecordCount uint64
	LastAccess  time.Time
	AccessCount int
	BloomBits   []byte
	BloomK      int
}

// warmStore persists per-segment metadata and bloom filter bytes to a local
// SQLite database (spec.md §4.5 "Warm | Local disk, per-segment metadata +
// bloom filters"), answering existence checks without a cold-tier round
// trip. Grounded on the teacher's go.mod direct dependency on
// modernc.org/sqlite (unused in the teacher's own source, adopted here for
// its first real use) and on calvinalkan-agent-task's database/sql +
// embedded-driver store pattern (open, migrate, prepared statements).
type warmStore struct {
	db *sql.DB
}

func openWarmStore(ctx context.Context, path string) (*warmStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, akierr.Wrap(akierr.KindDurability, "tier.warm.open", "open sqlite", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid pool contention

	if _, err := db.ExecContext(ctx, warmSchema); err != nil {
		_ = db.Close()
		return nil, akierr.Wrap(akierr.KindDurability, "tier.warm.open", "apply schema", err)
	}
	return &warmStore{db: db}, nil
}

const warmSchema = `
CREATE TABLE IF NOT EXISTS segment_meta (
	collection   TEXT NOT NULL,
	segment_id   TEXT NOT NULL,
	record_count INTEGER NOT NULL,
	last_access  INTEGER NOT NULL,
	access_count INTEGER NOT NULL,
	bloom_bits   BLOB NOT NULL,
	bloom_k      INTEGER NOT NULL,
	PRIMARY KEY (collection, segment_id)
);`

func (w *warmStore) Upsert(ctx context.Context, m warmMeta) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO segment_meta (collection, segment_id, record_count, last_access, access_count, bloom_bits, bloom_k)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, segment_id) DO UPDATE SET
			record_count = excluded.record_count,
			last_access  = excluded.last_access,
			access_count = excluded.access_count,
			bloom_bits   = excluded.bloom_bits,
			bloom_k      = excluded.bloom_k`,
		m.Collection, m.SegmentID, m.RecordCount, m.LastAccess.UnixMilli(), m.AccessCount, m.BloomBits, m.BloomK)
	if err != nil {
		return akierr.Wrap(akierr.KindDurability, "tier.warm.upsert", "write segment metadata", err)
	}
	return nil
}

func (w *warmStore) Get(ctx context.Context, key Key) (warmMeta, bool, error) {
	row := w.db.QueryRowContext(ctx, `
		SELECT record_count, last_access, access_count, bloom_bits, bloom_k
		FROM segment_meta WHERE collection = ? AND segment_id = ?`, key.Collection, key.SegmentID)

	var m warmMeta
	var lastAccessMs int64
	m.Collection, m.SegmentID = key.Collection, key.SegmentID
	err := row.Scan(&m.RecordCount, &lastAccessMs, &m.AccessCount, &m.BloomBits, &m.BloomK)
	if err == sql.ErrNoRows {
		return warmMeta{}, false, nil
	}
	if err != nil {
		return warmMeta{}, false, akierr.Wrap(akierr.KindDurability, "tier.warm.get", "read segment metadata", err)
	}
	m.LastAccess = time.UnixMilli(lastAccessMs)
	return m, true, nil
}

func (w *warmStore) Delete(ctx context.Context, key Key) error {
	_, err := w.db.ExecContext(ctx, `DELETE FROM segment_meta WHERE collection = ? AND segment_id = ?`,
		key.Collection, key.SegmentID)
	if err != nil {
		return akierr.Wrap(akierr.KindDurability, "tier.warm.delete", "delete segment metadata", err)
	}
	return nil
}

// DeleteCollection removes every row for collection (drop sequence step 5).
func (w *warmStore) DeleteCollection(ctx context.Context, collection string) error {
	_, err := w.db.ExecContext(ctx, `DELETE FROM segment_meta WHERE collection = ?`, collection)
	if err != nil {
		return akierr.Wrap(akierr.KindDurability, "tier.warm.delete_collection", "delete collection metadata", err)
	}
	return nil
}

func (w *warmStore) Close() error {
	return w.db.Close()
}
