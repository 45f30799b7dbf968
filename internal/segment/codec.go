package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"math/bits"

	"github.com/klauspost/compress/zstd"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// header is the fixed-size on-disk header (spec.md §4.2), little-endian
// throughout.
type header struct {
	Magic         [4]byte
	Version       uint32
	SegmentID     [16]byte
	Dimension     uint32
	DistanceKind  uint8
	_pad          [3]byte // keep the struct naturally aligned; never written meaningfully
	VectorCount   uint64
	VectorOffset  uint64
	PayloadOffset uint64
	MetadataOffset uint64
}

const headerSize = 4 + 4 + 16 + 4 + 1 + 3 + 8 + 8 + 8 + 8

// CompressionLevel selects the Zstd level used when encoding (spec.md §6
// `compression.level`, 1–22).
type CompressionLevel int

// DefaultCompressionLevel matches zstd's own default speed/ratio tradeoff.
const DefaultCompressionLevel CompressionLevel = 3

func (l CompressionLevel) toZstd() zstd.EncoderLevel {
	switch {
	case l <= 1:
		return zstd.SpeedFastest
	case l <= 6:
		return zstd.SpeedDefault
	case l <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Encode serializes s into the on-disk container format, compressing the
// vector and payload blocks independently at the given level.
func Encode(s Segment, level CompressionLevel) ([]byte, error) {
	if uint32(len(s.IDs)) != uint32(len(s.Vectors)) {
		return nil, akierr.New(akierr.KindInvalidInput, "segment.encode", "IDs and Vectors length mismatch")
	}
	if s.Payloads != nil && len(s.Payloads) != len(s.Vectors) {
		return nil, akierr.New(akierr.KindInvalidInput, "segment.encode", "Payloads and Vectors length mismatch")
	}

	vectorRaw, err := encodeVectors(s.Vectors, s.Dimension)
	if err != nil {
		return nil, err
	}
	vectorBlock, err := compressBlock(vectorRaw, level)
	if err != nil {
		return nil, akierr.Wrap(akierr.KindInvalidInput, "segment.encode", "compress vector block", err)
	}

	payloadRaw := encodeIDsAndPayloads(s.IDs, s.Payloads)
	payloadBlock, err := compressBlock(payloadRaw, level)
	if err != nil {
		return nil, akierr.Wrap(akierr.KindInvalidInput, "segment.encode", "compress payload block", err)
	}

	metaBlock := encodeMetadataBlock(s.Metadata)

	h := header{
		Version:      Version,
		Dimension:    s.Dimension,
		DistanceKind: uint8(s.Distance),
		VectorCount:  s.RecordCount(),
	}
	copy(h.Magic[:], Magic)
	copy(h.SegmentID[:], s.ID[:])

	h.VectorOffset = headerSize
	h.PayloadOffset = h.VectorOffset + uint64(len(vectorBlock))
	h.MetadataOffset = h.PayloadOffset + uint64(len(payloadBlock))

	var buf bytes.Buffer
	buf.Grow(int(h.MetadataOffset) + len(metaBlock) + 4)
	if err := writeHeader(&buf, h); err != nil {
		return nil, err
	}
	buf.Write(vectorBlock)
	buf.Write(payloadBlock)
	buf.Write(metaBlock)

	crc := crc32.ChecksumIEEE(buf.Bytes())
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	buf.Write(crcBuf[:])

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, h header) error {
	buf.Write(h.Magic[:])
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], h.Version)
	buf.Write(u32[:])
	buf.Write(h.SegmentID[:])
	binary.LittleEndian.PutUint32(u32[:], h.Dimension)
	buf.Write(u32[:])
	buf.WriteByte(h.DistanceKind)
	buf.Write(h._pad[:])
	var u64 [8]byte
	for _, v := range []uint64{h.VectorCount, h.VectorOffset, h.PayloadOffset, h.MetadataOffset} {
		binary.LittleEndian.PutUint64(u64[:], v)
		buf.Write(u64[:])
	}
	return nil
}

// Decode parses raw segment bytes, verifying the trailing CRC and every
// invariant named in spec.md §4.2 before returning a Segment.
func Decode(raw []byte) (Segment, error) {
	if len(raw) < headerSize+4 {
		return Segment{}, akierr.New(akierr.KindCorrupt, "segment.decode", "buffer shorter than header+trailer")
	}

	trailerOffset := len(raw) - 4
	wantCRC := binary.LittleEndian.Uint32(raw[trailerOffset:])
	gotCRC := crc32.ChecksumIEEE(raw[:trailerOffset])
	if wantCRC != gotCRC {
		return Segment{}, akierr.New(akierr.KindCorrupt, "segment.decode", "crc mismatch")
	}

	h, err := readHeader(raw[:headerSize])
	if err != nil {
		return Segment{}, err
	}
	if string(h.Magic[:]) != Magic {
		return Segment{}, akierr.New(akierr.KindCorrupt, "segment.decode", fmt.Sprintf("bad magic %q", h.Magic))
	}
	if h.Version != Version {
		return Segment{}, akierr.New(akierr.KindCorrupt, "segment.decode", fmt.Sprintf("unsupported version %d", h.Version))
	}

	// I8: every offset/size must fit the host's index type before use.
	vectorOffset, err := checkedSize(h.VectorOffset, "vector_offset")
	if err != nil {
		return Segment{}, err
	}
	payloadOffset, err := checkedSize(h.PayloadOffset, "payload_offset")
	if err != nil {
		return Segment{}, err
	}
	metadataOffset, err := checkedSize(h.MetadataOffset, "metadata_offset")
	if err != nil {
		return Segment{}, err
	}
	if vectorOffset > payloadOffset || payloadOffset > metadataOffset || metadataOffset > trailerOffset {
		return Segment{}, akierr.New(akierr.KindCorrupt, "segment.decode", "block offsets out of order")
	}

	// vector_count * dimension checked multiplication (spec.md §4.2).
	total, overflow := checkedMul(h.VectorCount, uint64(h.Dimension))
	if overflow {
		return Segment{}, akierr.New(akierr.KindCorrupt, "segment.decode", "vector_count*dimension overflow")
	}
	if _, err := checkedSize(total, "vector_count*dimension"); err != nil {
		return Segment{}, err
	}

	vectorRaw, err := decompressBlock(raw[vectorOffset:payloadOffset])
	if err != nil {
		return Segment{}, err
	}
	vectors, err := decodeVectors(vectorRaw, h.VectorCount, h.Dimension)
	if err != nil {
		return Segment{}, err
	}

	payloadRaw, err := decompressBlock(raw[payloadOffset:metadataOffset])
	if err != nil {
		return Segment{}, err
	}
	ids, payloads, err := decodeIDsAndPayloads(payloadRaw, h.VectorCount)
	if err != nil {
		return Segment{}, err
	}

	metaBlock := raw[metadataOffset:trailerOffset]
	metadata, err := decodeMetadataBlock(metaBlock)
	if err != nil {
		return Segment{}, err
	}

	var segID ID
	copy(segID[:], h.SegmentID[:])

	return Segment{
		ID:        segID,
		Dimension: h.Dimension,
		Distance:  model.DistanceMetric(h.DistanceKind),
		Vectors:   vectors,
		IDs:       ids,
		Payloads:  payloads,
		Metadata:  metadata,
	}, nil
}

func readHeader(b []byte) (header, error) {
	var h header
	copy(h.Magic[:], b[0:4])
	h.Version = binary.LittleEndian.Uint32(b[4:8])
	copy(h.SegmentID[:], b[8:24])
	h.Dimension = binary.LittleEndian.Uint32(b[24:28])
	h.DistanceKind = b[28]
	h.VectorCount = binary.LittleEndian.Uint64(b[32:40])
	h.VectorOffset = binary.LittleEndian.Uint64(b[40:48])
	h.PayloadOffset = binary.LittleEndian.Uint64(b[48:56])
	h.MetadataOffset = binary.LittleEndian.Uint64(b[56:64])
	return h, nil
}

// checkedSize converts a u64 offset/size to the host int type, surfacing
// SizeExceedsHost (I8) when it would not fit (relevant on 32-bit hosts).
func checkedSize(v uint64, field string) (int, error) {
	if bits.UintSize < 64 && v > uint64(math.MaxInt32) {
		return 0, akierr.New(akierr.KindCorrupt, "segment.decode", fmt.Sprintf("%s exceeds host pointer width", field))
	}
	if v > uint64(^uint(0)>>1) {
		return 0, akierr.New(akierr.KindCorrupt, "segment.decode", fmt.Sprintf("%s exceeds host pointer width", field))
	}
	return int(v), nil
}

// checkedMul multiplies a and b as u64, reporting overflow rather than
// wrapping silently.
func checkedMul(a, b uint64) (result uint64, overflow bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi != 0
}

func compressBlock(raw []byte, level CompressionLevel) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level.toZstd()))
	if err != nil {
		return nil, err
	}
	compressed := enc.EncodeAll(raw, nil)
	_ = enc.Close()

	var buf bytes.Buffer
	buf.Grow(8 + len(compressed) + 8)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(len(compressed)))
	buf.Write(u64[:])
	buf.Write(compressed)
	binary.LittleEndian.PutUint64(u64[:], uint64(len(raw)))
	buf.Write(u64[:])
	return buf.Bytes(), nil
}

func decompressBlock(block []byte) ([]byte, error) {
	if len(block) < 16 {
		if len(block) == 0 {
			return nil, nil
		}
		return nil, akierr.New(akierr.KindCorrupt, "segment.decode", "block shorter than size prefixes")
	}
	compressedSize := binary.LittleEndian.Uint64(block[0:8])
	sizeInt, err := checkedSize(compressedSize, "compressed_size")
	if err != nil {
		return nil, err
	}
	if 8+sizeInt+8 != len(block) {
		return nil, akierr.New(akierr.KindCorrupt, "segment.decode", "compressed_size does not match block length")
	}
	compressed := block[8 : 8+sizeInt]
	uncompressedSize := binary.LittleEndian.Uint64(block[8+sizeInt:])

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "create zstd decoder", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, akierr.Wrap(akierr.KindCorrupt, "segment.decode", "zstd decode failed", err)
	}
	if uint64(len(raw)) != uncompressedSize {
		return nil, akierr.New(akierr.KindCorrupt, "segment.decode", "decompressed size mismatch")
	}
	return raw, nil
}

func encodeMetadataBlock(meta []byte) []byte {
	var buf bytes.Buffer
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(len(meta)))
	buf.Write(u64[:])
	buf.Write(meta)
	return buf.Bytes()
}

func decodeMetadataBlock(block []byte) ([]byte, error) {
	if len(block) < 8 {
		if len(block) == 0 {
			return nil, nil
		}
		return nil, akierr.New(akierr.KindCorrupt, "segment.decode", "metadata block shorter than size prefix")
	}
	size := binary.LittleEndian.Uint64(block[0:8])
	sizeInt, err := checkedSize(size, "metadata size")
	if err != nil {
		return nil, err
	}
	if 8+sizeInt != len(block) {
		return nil, akierr.New(akierr.KindCorrupt, "segment.decode", "metadata size does not match block length")
	}
	if sizeInt == 0 {
		return nil, nil
	}
	out := make([]byte, sizeInt)
	copy(out, block[8:8+sizeInt])
	return out, nil
}
