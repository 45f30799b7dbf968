// Package akierr defines the error taxonomy shared by every core package.
//
// Every error that crosses a package boundary in the storage/index core is
// classified into one of the Kinds below. Callers use errors.As to recover
// the Kind (and therefore decide whether to retry, surface to a user, or
// treat the condition as fatal) without depending on any single package's
// internal sentinel values.
package akierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy purposes (spec §7).
type Kind int

const (
	// KindUnknown is never constructed directly; it is the zero value of Kind
	// and signals a bug if observed on an *Error returned by this package.
	KindUnknown Kind = iota

	// KindInvalidInput covers wrong vector dimension, out-of-range top_k,
	// zero timeout, unbounded pagination, and malformed filters.
	KindInvalidInput

	// KindNotFound covers an unknown collection or unknown document id
	// (only ever returned from a targeted get, never from search).
	KindNotFound

	// KindConflict covers a manifest version that stayed stale after the
	// configured number of optimistic-locking retries.
	KindConflict

	// KindCorrupt covers CRC mismatches, size-exceeds-host conversions,
	// dimension*count overflow, and decompressed-size mismatches.
	KindCorrupt

	// KindDurability covers WAL fsync or write failures.
	KindDurability

	// KindTransient covers object-store errors that are retryable
	// (5xx responses, timeouts, connection resets).
	KindTransient

	// KindDeadline covers a request that exceeded its caller-supplied timeout.
	KindDeadline

	// KindFatal covers LSN exhaustion and lock poisoning over unrecoverable
	// data — conditions that mean the calling collection must stop accepting
	// writes.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCorrupt:
		return "corrupt"
	case KindDurability:
		return "durability"
	case KindTransient:
		return "transient"
	case KindDeadline:
		return "deadline"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind and an optional cause.
type Error struct {
	Kind Kind
	Op   string // component and operation, e.g. "wal.append" or "segment.decode"
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("akidb: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("akidb: %s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, akierr.New(KindConflict, ...)) match on Kind alone,
// ignoring Op/Msg/Err so callers can test "is this a conflict" cheaply.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error with the given kind, operation, and message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an *Error that wraps cause.
func Wrap(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// Sentinel returns a comparable *Error for use with errors.Is, carrying
// only a Kind — use this as the target of errors.Is(err, akierr.Sentinel(akierr.KindDeadline)).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// KindOf extracts the Kind from err, returning KindUnknown if err does not
// wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
