// Package objectstore defines the external object-store collaborator the
// core consumes (spec.md §1, §6) and provides an in-memory implementation
// for tests plus S3, GCS, and Azure Blob adapters for production use. The
// core never imports a specific cloud SDK outside this package — every
// other package depends only on the Store interface.
package objectstore

import (
	"context"
	"io"

	"github.com/akidb/akidb/internal/akierr"
)

// ByteRange requests a sub-range of an object: [Offset, Offset+Length).
// Length <= 0 means "to the end of the object".
type ByteRange struct {
	Offset int64
	Length int64
}

// ObjectInfo describes one entry returned by List.
type ObjectInfo struct {
	Key     string
	Size    int64
	Version string
}

// Store is the narrow object-store capability the core depends on (spec.md
// §6): byte-level GET/PUT/DELETE/LIST, range GET, and conditional PUT
// (if-match on a version token). Implementations must distinguish
// transient errors (retryable: 5xx, timeouts) from permanent ones — see
// WithRetry, which every adapter in this package is wrapped in.
type Store interface {
	// Get returns the full object, or the sub-range named by rng when non-nil.
	// Returns a *akierr.Error with Kind KindNotFound when key does not exist.
	Get(ctx context.Context, key string, rng *ByteRange) ([]byte, error)

	// Put writes bytes to key. When ifMatch is non-empty, the write is
	// conditional: it fails with KindConflict if the object's current
	// version does not equal ifMatch. Returns the new version token.
	Put(ctx context.Context, key string, data []byte, ifMatch string) (version string, err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every object whose key has the given prefix, in
	// lexicographic key order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Reader fetches the whole object at key with a single Get and returns it
// as an io.Reader; it does no range access.
func Reader(ctx context.Context, s Store, key string) (io.Reader, error) {
	data, err := s.Get(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	return newByteReader(data), nil
}

func newByteReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

type sliceReader struct {
	b   []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

// notFound builds the standard KindNotFound error for a missing key.
func notFound(op, key string) error {
	return akierr.New(akierr.KindNotFound, op, "key "+key+" does not exist")
}

// conflict builds the standard KindConflict error for a failed conditional PUT.
func conflict(op, key string) error {
	return akierr.New(akierr.KindConflict, op, "conditional put on "+key+" lost the race")
}
