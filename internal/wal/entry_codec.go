package wal

import (
	"encoding/binary"
	"encoding/json"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// entryBody is the part of an Entry that's written after the length/CRC
// framing: lsn:u64 | kind:u8 | doc_id:16 | body_len:u32 | body. body is the
// JSON-encoded model.Document for EntryPut and empty for
// EntryDelete/EntryTombstone — the collection and stream are implied by
// which stream file the record lives in, so neither travels on the wire.
func encodeEntryBody(lsn model.LSN, kind model.EntryKind, docID model.DocumentId, doc model.Document) ([]byte, error) {
	var body []byte
	if kind == model.EntryPut {
		var err error
		body, err = json.Marshal(doc)
		if err != nil {
			return nil, akierr.Wrap(akierr.KindInvalidInput, "wal.encode", "marshal document", err)
		}
	}

	out := make([]byte, 8+1+16+4+len(body))
	binary.LittleEndian.PutUint64(out[0:8], uint64(lsn))
	out[8] = uint8(kind)
	copy(out[9:25], docID[:])
	binary.LittleEndian.PutUint32(out[25:29], uint32(len(body)))
	copy(out[29:], body)
	return out, nil
}

func decodeEntryBody(raw []byte) (model.Entry, error) {
	if len(raw) < 29 {
		return model.Entry{}, akierr.New(akierr.KindCorrupt, "wal.decode", "entry body shorter than fixed fields")
	}
	lsn := model.LSN(binary.LittleEndian.Uint64(raw[0:8]))
	kind := model.EntryKind(raw[8])
	var docID model.DocumentId
	copy(docID[:], raw[9:25])
	bodyLen := binary.LittleEndian.Uint32(raw[25:29])
	if uint32(len(raw)-29) != bodyLen {
		return model.Entry{}, akierr.New(akierr.KindCorrupt, "wal.decode", "body_len does not match record length")
	}

	entry := model.Entry{LSN: lsn, Kind: kind, DocID: docID}
	if kind == model.EntryPut {
		if err := json.Unmarshal(raw[29:], &entry.Doc); err != nil {
			return model.Entry{}, akierr.Wrap(akierr.KindCorrupt, "wal.decode", "unmarshal document", err)
		}
	}
	return entry, nil
}
