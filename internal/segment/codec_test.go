package segment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

func sampleSegment() Segment {
	return Segment{
		ID:        NewID(),
		Dimension: 4,
		Distance:  model.DistanceL2,
		Vectors: []model.Vector{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
		},
		IDs: []model.DocumentId{uuid.New(), uuid.New()},
	}
}

// P3: decode(encode(x)) == x for every segment in bounds.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := sampleSegment()
	s.Payloads = []model.Payload{
		{"color": model.Keyword("red"), "score": model.Float(0.5)},
		nil,
	}
	s.Metadata = []byte("compaction-gen:3")

	raw, err := Encode(s, DefaultCompressionLevel)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Dimension, got.Dimension)
	assert.Equal(t, s.Distance, got.Distance)
	assert.Equal(t, s.Vectors, got.Vectors)
	assert.Equal(t, s.IDs, got.IDs)
	assert.Equal(t, s.Payloads[0], got.Payloads[0])
	assert.Equal(t, s.Metadata, got.Metadata)
}

func TestEncodeDecodeEmptyPayloadsAndMetadata(t *testing.T) {
	s := sampleSegment()
	raw, err := Encode(s, DefaultCompressionLevel)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Nil(t, got.Payloads)
	assert.Nil(t, got.Metadata)
	assert.Equal(t, s.Vectors, got.Vectors)
}

// Concrete scenario from spec.md §8: dimension=4, vector_count=2.
func TestDecodeDetectsSingleBitFlip(t *testing.T) {
	s := sampleSegment()
	raw, err := Encode(s, DefaultCompressionLevel)
	require.NoError(t, err)

	corrupt := make([]byte, len(raw))
	copy(corrupt, raw)
	corrupt[headerSize] ^= 0x01 // flip one bit inside the vector block

	_, err = Decode(corrupt)
	require.Error(t, err)
	assert.Equal(t, akierr.KindCorrupt, akierr.KindOf(err))
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)
	assert.Equal(t, akierr.KindCorrupt, akierr.KindOf(err))
}

func TestEncodeRejectsDimensionMismatch(t *testing.T) {
	s := sampleSegment()
	s.Vectors[0] = []float32{1, 2, 3} // wrong length for Dimension=4

	_, err := Encode(s, DefaultCompressionLevel)
	require.Error(t, err)
	assert.Equal(t, akierr.KindInvalidInput, akierr.KindOf(err))
}

func TestCheckedMulOverflow(t *testing.T) {
	_, overflow := checkedMul(1<<63, 2)
	assert.True(t, overflow)

	result, overflow := checkedMul(4, 2)
	assert.False(t, overflow)
	assert.Equal(t, uint64(8), result)
}
