package segment

import (
	"encoding/binary"
	"math"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// encodeVectors lays out vectors as a flat row-major float32 array, checking
// that every row matches dimension before it ever reaches the compressor.
func encodeVectors(vectors []model.Vector, dimension uint32) ([]byte, error) {
	total, overflow := checkedMul(uint64(len(vectors)), uint64(dimension))
	if overflow {
		return nil, akierr.New(akierr.KindInvalidInput, "segment.encode", "vector_count*dimension overflow")
	}
	totalInt, err := checkedSize(total, "vector_count*dimension")
	if err != nil {
		return nil, err
	}

	buf := make([]byte, totalInt*4)
	for i, v := range vectors {
		if uint32(len(v)) != dimension {
			return nil, akierr.New(akierr.KindInvalidInput, "segment.encode", "vector dimension mismatch")
		}
		for j, f := range v {
			off := (i*int(dimension) + j) * 4
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
		}
	}
	return buf, nil
}

// decodeVectors reverses encodeVectors. vectorCount and dimension come from
// the trusted (already range-checked) header fields.
func decodeVectors(raw []byte, vectorCount uint64, dimension uint32) ([]model.Vector, error) {
	if vectorCount == 0 {
		if len(raw) != 0 {
			return nil, akierr.New(akierr.KindCorrupt, "segment.decode", "non-empty vector block for zero vector_count")
		}
		return nil, nil
	}

	total, overflow := checkedMul(vectorCount, uint64(dimension))
	if overflow {
		return nil, akierr.New(akierr.KindCorrupt, "segment.decode", "vector_count*dimension overflow")
	}
	totalInt, err := checkedSize(total, "vector_count*dimension")
	if err != nil {
		return nil, err
	}
	if len(raw) != totalInt*4 {
		return nil, akierr.New(akierr.KindCorrupt, "segment.decode", "vector block length does not match vector_count*dimension")
	}

	countInt, err := checkedSize(vectorCount, "vector_count")
	if err != nil {
		return nil, err
	}
	dim := int(dimension)

	out := make([]model.Vector, countInt)
	for i := 0; i < countInt; i++ {
		row := make(model.Vector, dim)
		base := i * dim * 4
		for j := 0; j < dim; j++ {
			off := base + j*4
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
		}
		out[i] = row
	}
	return out, nil
}
