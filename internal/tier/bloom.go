package tier

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"
)

// bloom is a fixed-size bloom filter over document ids, used by the warm
// tier to answer "could this id be in this segment" without a network
// round-trip (spec.md §4.5 "local metadata + bloom filters"). Grounded on
// the teacher's use of golang.org/x/crypto (argon2, in internal/auth) for a
// different primitive from the same module; blake2b is the keyed hash this
// package reaches for instead, since a bloom filter needs a fast
// general-purpose hash, not a deliberately slow password KDF.
type bloom struct {
	bits []byte
	k    int
}

// newBloom returns an empty bloom filter sized for n expected elements at
// false-positive rate p, using the standard m = -n*ln(p)/ln(2)^2 and
// k = (m/n)*ln(2) formulas, rounded to convenient bounds.
func newBloom(n int, p float64) *bloom {
	if n < 1 {
		n = 1
	}
	m := bloomOptimalBits(n, p)
	k := bloomOptimalHashes(m, n)
	return &bloom{bits: make([]byte, (m+7)/8), k: k}
}

func bloomOptimalBits(n int, p float64) int {
	// ln(p) is always negative for p in (0,1); ln2Sq ~= 0.4804530139182014.
	const ln2Sq = 0.4804530139182014
	m := -float64(n) * math.Log(p) / ln2Sq
	bits := int(m)
	if bits < 64 {
		bits = 64
	}
	return bits
}

func bloomOptimalHashes(m, n int) int {
	const ln2 = 0.6931471805599453
	k := int(float64(m) / float64(n) * ln2)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return k
}

func (b *bloom) indices(member []byte) []uint64 {
	sum := blake2b.Sum256(member)
	h1 := binary.LittleEndian.Uint64(sum[0:8])
	h2 := binary.LittleEndian.Uint64(sum[8:16])
	nbits := uint64(len(b.bits) * 8)
	out := make([]uint64, b.k)
	for i := 0; i < b.k; i++ {
		out[i] = (h1 + uint64(i)*h2) % nbits
	}
	return out
}

// Add marks member as present.
func (b *bloom) Add(member []byte) {
	for _, idx := range b.indices(member) {
		b.bits[idx/8] |= 1 << (idx % 8)
	}
}

// MightContain reports whether member could be present. False means
// definitely absent; true means possibly present (false positives allowed
// at the configured rate).
func (b *bloom) MightContain(member []byte) bool {
	for _, idx := range b.indices(member) {
		if b.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// Bytes returns the filter's raw bit array, for persistence in the warm
// tier's local metadata store.
func (b *bloom) Bytes() []byte { return b.bits }

// loadBloom reconstructs a bloom filter from persisted bits and the k that
// was used to build it.
func loadBloom(bits []byte, k int) *bloom {
	return &bloom{bits: bits, k: k}
}
