package objectstore

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/akidb/akidb/internal/akierr"
)

// Retry policy constants (spec.md §6): exponential backoff, base 100ms,
// cap 5s, at most 5 attempts.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
)

// RetryConfig configures WithRetry. The zero value is not usable; use
// DefaultRetryConfig().
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the spec-mandated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

// WithRetry runs fn, retrying with jittered exponential backoff while fn
// returns a KindTransient error, up to cfg.MaxAttempts total attempts.
// Adapted from the teacher's internal/storage.WithRetry, generalized from
// Postgres serialization-failure codes to the object-store Transient kind
// (spec.md §7 propagation policy: "transient I/O errors are retried
// locally within the object-store adapter; after exhaustion they surface
// as Transient to the caller").
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.BaseDelay
	var err error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !akierr.Is(err, akierr.KindTransient) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(delay) + 1)) //nolint:gosec // jitter doesn't need crypto-strength randomness
		wait := delay + jitter
		if wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
