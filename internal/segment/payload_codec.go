package segment

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// encodeIDsAndPayloads packs the per-record document IDs and optional
// payload maps into the payload block's uncompressed form. Document IDs are
// not optional (spec.md has no standalone id section), so they travel
// alongside payloads inside the same compressed block rather than the
// vector block — a placement decision recorded in the design ledger.
func encodeIDsAndPayloads(ids []model.DocumentId, payloads []model.Payload) []byte {
	var buf bytes.Buffer
	hasPayloads := byte(0)
	if payloads != nil {
		hasPayloads = 1
	}
	buf.WriteByte(hasPayloads)

	for i, id := range ids {
		buf.Write(id[:])
		if hasPayloads == 1 {
			encodePayload(&buf, payloads[i])
		}
	}
	return buf.Bytes()
}

func encodePayload(buf *bytes.Buffer, p model.Payload) {
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(p)))
	buf.Write(u32[:])

	for k, v := range p {
		writeString16(buf, k)
		buf.WriteByte(uint8(v.Kind))
		encodeValue(buf, v)
	}
}

func encodeValue(buf *bytes.Buffer, v model.Value) {
	var u64 [8]byte
	switch v.Kind {
	case model.KindBoolean:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case model.KindInteger, model.KindTimestamp:
		n := v.Int
		if v.Kind == model.KindTimestamp {
			n = v.TimestampMS
		}
		binary.LittleEndian.PutUint64(u64[:], uint64(n))
		buf.Write(u64[:])
	case model.KindFloat:
		binary.LittleEndian.PutUint64(u64[:], math.Float64bits(v.Float))
		buf.Write(u64[:])
	case model.KindText, model.KindKeyword:
		writeString32(buf, v.Text)
	case model.KindGeoPoint:
		binary.LittleEndian.PutUint64(u64[:], math.Float64bits(v.Geo.Lat))
		buf.Write(u64[:])
		binary.LittleEndian.PutUint64(u64[:], math.Float64bits(v.Geo.Lon))
		buf.Write(u64[:])
	case model.KindJSON:
		var u32 [4]byte
		binary.LittleEndian.PutUint32(u32[:], uint32(len(v.JSON)))
		buf.Write(u32[:])
		buf.Write(v.JSON)
	}
}

func writeString16(buf *bytes.Buffer, s string) {
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], uint16(len(s)))
	buf.Write(u16[:])
	buf.WriteString(s)
}

func writeString32(buf *bytes.Buffer, s string) {
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(s)))
	buf.Write(u32[:])
	buf.WriteString(s)
}

// decodeIDsAndPayloads reverses encodeIDsAndPayloads against a trusted
// vectorCount from the header.
func decodeIDsAndPayloads(raw []byte, vectorCount uint64) ([]model.DocumentId, []model.Payload, error) {
	countInt, err := checkedSize(vectorCount, "vector_count")
	if err != nil {
		return nil, nil, err
	}
	if countInt == 0 {
		return nil, nil, nil
	}
	if len(raw) < 1 {
		return nil, nil, akierr.New(akierr.KindCorrupt, "segment.decode", "payload block missing presence flag")
	}

	r := bytes.NewReader(raw)
	hasFlag, err := r.ReadByte()
	if err != nil {
		return nil, nil, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read payload presence flag", err)
	}

	ids := make([]model.DocumentId, countInt)
	var payloads []model.Payload
	if hasFlag == 1 {
		payloads = make([]model.Payload, countInt)
	}

	for i := 0; i < countInt; i++ {
		var idBytes [16]byte
		if _, err := r.Read(idBytes[:]); err != nil {
			return nil, nil, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read document id", err)
		}
		ids[i] = model.DocumentId(idBytes)

		if hasFlag == 1 {
			p, err := decodePayload(r)
			if err != nil {
				return nil, nil, err
			}
			payloads[i] = p
		}
	}

	if r.Len() != 0 {
		return nil, nil, akierr.New(akierr.KindCorrupt, "segment.decode", "trailing bytes in payload block")
	}
	return ids, payloads, nil
}

func decodePayload(r *bytes.Reader) (model.Payload, error) {
	var u32 [4]byte
	if _, err := r.Read(u32[:]); err != nil {
		return nil, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read payload field count", err)
	}
	fieldCount := binary.LittleEndian.Uint32(u32[:])

	p := make(model.Payload, fieldCount)
	for i := uint32(0); i < fieldCount; i++ {
		key, err := readString16(r)
		if err != nil {
			return nil, err
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read value kind", err)
		}
		v, err := decodeValue(r, model.ValueKind(kindByte))
		if err != nil {
			return nil, err
		}
		p[key] = v
	}
	return p, nil
}

func decodeValue(r *bytes.Reader, kind model.ValueKind) (model.Value, error) {
	var u64 [8]byte
	switch kind {
	case model.KindBoolean:
		b, err := r.ReadByte()
		if err != nil {
			return model.Value{}, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read bool value", err)
		}
		return model.Bool(b != 0), nil
	case model.KindInteger:
		if _, err := r.Read(u64[:]); err != nil {
			return model.Value{}, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read int value", err)
		}
		return model.Integer(int64(binary.LittleEndian.Uint64(u64[:]))), nil
	case model.KindTimestamp:
		if _, err := r.Read(u64[:]); err != nil {
			return model.Value{}, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read timestamp value", err)
		}
		return model.TimestampMS(int64(binary.LittleEndian.Uint64(u64[:]))), nil
	case model.KindFloat:
		if _, err := r.Read(u64[:]); err != nil {
			return model.Value{}, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read float value", err)
		}
		return model.Float(math.Float64frombits(binary.LittleEndian.Uint64(u64[:]))), nil
	case model.KindText:
		s, err := readString32(r)
		if err != nil {
			return model.Value{}, err
		}
		return model.Text(s), nil
	case model.KindKeyword:
		s, err := readString32(r)
		if err != nil {
			return model.Value{}, err
		}
		return model.Keyword(s), nil
	case model.KindGeoPoint:
		if _, err := r.Read(u64[:]); err != nil {
			return model.Value{}, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read geo lat", err)
		}
		lat := math.Float64frombits(binary.LittleEndian.Uint64(u64[:]))
		if _, err := r.Read(u64[:]); err != nil {
			return model.Value{}, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read geo lon", err)
		}
		lon := math.Float64frombits(binary.LittleEndian.Uint64(u64[:]))
		return model.Geo(lat, lon), nil
	case model.KindJSON:
		var u32 [4]byte
		if _, err := r.Read(u32[:]); err != nil {
			return model.Value{}, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read json length", err)
		}
		n := binary.LittleEndian.Uint32(u32[:])
		b := make([]byte, n)
		if _, err := r.Read(b); err != nil {
			return model.Value{}, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read json bytes", err)
		}
		return model.JSON(b), nil
	default:
		return model.Value{}, akierr.New(akierr.KindCorrupt, "segment.decode", "unknown value kind")
	}
}

func readString16(r *bytes.Reader) (string, error) {
	var u16 [2]byte
	if _, err := r.Read(u16[:]); err != nil {
		return "", akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read string16 length", err)
	}
	n := binary.LittleEndian.Uint16(u16[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return "", akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read string16 bytes", err)
		}
	}
	return string(b), nil
}

func readString32(r *bytes.Reader) (string, error) {
	var u32 [4]byte
	if _, err := r.Read(u32[:]); err != nil {
		return "", akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read string32 length", err)
	}
	n := binary.LittleEndian.Uint32(u32[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return "", akierr.Wrap(akierr.KindCorrupt, "segment.decode", "read string32 bytes", err)
		}
	}
	return string(b), nil
}
