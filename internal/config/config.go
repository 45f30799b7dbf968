// Package config loads and validates the core's named options (spec.md §6)
// from environment variables. Config *loading mechanisms* beyond env vars
// (files, flags, remote config services) are out of scope — this package
// only turns the named options table into a validated Go struct.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every named option the core consumes (spec.md §6).
type Config struct {
	// HNSW construction/query parameters.
	HNSWM              int
	HNSWEfConstruction int
	HNSWEfSearch       int

	// Segment codec.
	CompressionLevel int // Zstd level 1-22.

	// WAL.
	WALSegmentRollBytes int64

	// Tier cache.
	TierHotMaxBytes        int64
	TierPromotionThreshold int
	TierWindow             time.Duration
	TierDemotionIdle       time.Duration
	TierBloomFalsePositive float64 // target bloom filter false-positive rate.

	// Manifest.
	ManifestMaxRetries int

	// Segment builder (spec.md §2's background seal worker).
	SegmentBuilderPollInterval time.Duration
	SegmentBuilderBatchSize    int

	LogLevel string
}

// LoadDotEnv loads a .env file if present, mirroring the teacher's
// cmd/akashi/main.go convenience call. It is never required: production
// deployments are expected to set real environment variables, and a
// missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load reads configuration from environment variables with the spec's
// defaults. Returns an error if any environment variable contains an
// unparseable value; missing variables silently use defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		LogLevel: envStr("AKIDB_LOG_LEVEL", "info"),
	}

	cfg.HNSWM, errs = collectInt(errs, "AKIDB_HNSW_M", 32)
	cfg.HNSWEfConstruction, errs = collectInt(errs, "AKIDB_HNSW_EF_CONSTRUCTION", 200)
	cfg.HNSWEfSearch, errs = collectInt(errs, "AKIDB_HNSW_EF_SEARCH", 64)
	cfg.CompressionLevel, errs = collectInt(errs, "AKIDB_COMPRESSION_LEVEL", 3)
	cfg.TierPromotionThreshold, errs = collectInt(errs, "AKIDB_TIER_PROMOTION_THRESHOLD", 3)
	cfg.ManifestMaxRetries, errs = collectInt(errs, "AKIDB_MANIFEST_MAX_RETRIES", 5)
	cfg.SegmentBuilderBatchSize, errs = collectInt(errs, "AKIDB_SEGMENT_BUILDER_BATCH_SIZE", 10000)

	var rollBytes, hotMaxBytes int
	rollBytes, errs = collectInt(errs, "AKIDB_WAL_SEGMENT_ROLL_BYTES", 64<<20)
	cfg.WALSegmentRollBytes = int64(rollBytes)
	hotMaxBytes, errs = collectInt(errs, "AKIDB_TIER_HOT_MAX_BYTES", 256<<20)
	cfg.TierHotMaxBytes = int64(hotMaxBytes)

	cfg.TierBloomFalsePositive, errs = collectFloat(errs, "AKIDB_TIER_BLOOM_FALSE_POSITIVE", 0.01)

	cfg.TierWindow, errs = collectDuration(errs, "AKIDB_TIER_WINDOW", time.Minute)
	cfg.TierDemotionIdle, errs = collectDuration(errs, "AKIDB_TIER_DEMOTION_IDLE", 5*time.Minute)
	cfg.SegmentBuilderPollInterval, errs = collectDuration(errs, "AKIDB_SEGMENT_BUILDER_POLL_INTERVAL", 5*time.Second)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: invalid environment variables: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectFloat parses a float64 env var, appending any error to the accumulator.
func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that every option is within the bounds spec.md's
// component contracts require (§4.3 HNSW validation, §4.2 Zstd levels,
// §4.6 pagination/retry bounds).
func (c Config) Validate() error {
	var errs []error

	if c.HNSWM < 2 {
		errs = append(errs, errors.New("config: AKIDB_HNSW_M must be >= 2"))
	}
	if c.HNSWEfConstruction < c.HNSWM {
		errs = append(errs, errors.New("config: AKIDB_HNSW_EF_CONSTRUCTION must be >= AKIDB_HNSW_M"))
	}
	if c.HNSWEfSearch < 1 {
		errs = append(errs, errors.New("config: AKIDB_HNSW_EF_SEARCH must be >= 1"))
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		errs = append(errs, errors.New("config: AKIDB_COMPRESSION_LEVEL must be in [1, 22]"))
	}
	if c.WALSegmentRollBytes <= 0 {
		errs = append(errs, errors.New("config: AKIDB_WAL_SEGMENT_ROLL_BYTES must be positive"))
	}
	if c.TierHotMaxBytes <= 0 {
		errs = append(errs, errors.New("config: AKIDB_TIER_HOT_MAX_BYTES must be positive"))
	}
	if c.TierPromotionThreshold < 1 {
		errs = append(errs, errors.New("config: AKIDB_TIER_PROMOTION_THRESHOLD must be >= 1"))
	}
	if c.TierWindow <= 0 {
		errs = append(errs, errors.New("config: AKIDB_TIER_WINDOW must be positive"))
	}
	if c.TierDemotionIdle <= 0 {
		errs = append(errs, errors.New("config: AKIDB_TIER_DEMOTION_IDLE must be positive"))
	}
	if c.TierBloomFalsePositive <= 0 || c.TierBloomFalsePositive >= 1 {
		errs = append(errs, errors.New("config: AKIDB_TIER_BLOOM_FALSE_POSITIVE must be in (0, 1)"))
	}
	if c.ManifestMaxRetries < 0 {
		errs = append(errs, errors.New("config: AKIDB_MANIFEST_MAX_RETRIES must be >= 0"))
	}
	if c.SegmentBuilderPollInterval <= 0 {
		errs = append(errs, errors.New("config: AKIDB_SEGMENT_BUILDER_POLL_INTERVAL must be positive"))
	}
	if c.SegmentBuilderBatchSize < 1 {
		errs = append(errs, errors.New("config: AKIDB_SEGMENT_BUILDER_BATCH_SIZE must be >= 1"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid float", key, v)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
