package config

import (
	"testing"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatValid(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.05")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0.05 {
		t.Fatalf("expected 0.05, got %f", v)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "abc")
	_, err := envFloat("TEST_FLOAT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-float value, got nil")
	}
	if got := err.Error(); got != `TEST_FLOAT_BAD="abc" is not a valid float` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidHNSWM(t *testing.T) {
	t.Setenv("AKIDB_HNSW_M", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid AKIDB_HNSW_M")
	}
	if got := err.Error(); !contains(got, "AKIDB_HNSW_M") || !contains(got, "abc") {
		t.Fatalf("error should mention AKIDB_HNSW_M and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("AKIDB_HNSW_M", "abc")
	t.Setenv("AKIDB_COMPRESSION_LEVEL", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "AKIDB_HNSW_M") {
		t.Fatalf("error should mention AKIDB_HNSW_M, got: %s", got)
	}
	if !contains(got, "AKIDB_COMPRESSION_LEVEL") {
		t.Fatalf("error should mention AKIDB_COMPRESSION_LEVEL, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.HNSWM != 32 {
		t.Fatalf("expected default HNSWM 32, got %d", cfg.HNSWM)
	}
	if cfg.HNSWEfConstruction != 200 {
		t.Fatalf("expected default HNSWEfConstruction 200, got %d", cfg.HNSWEfConstruction)
	}
	if cfg.CompressionLevel != 3 {
		t.Fatalf("expected default CompressionLevel 3, got %d", cfg.CompressionLevel)
	}
	if cfg.TierPromotionThreshold != 3 {
		t.Fatalf("expected default TierPromotionThreshold 3, got %d", cfg.TierPromotionThreshold)
	}
	if cfg.ManifestMaxRetries != 5 {
		t.Fatalf("expected default ManifestMaxRetries 5, got %d", cfg.ManifestMaxRetries)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLoad_HNSWEfConstructionBelowM(t *testing.T) {
	t.Setenv("AKIDB_HNSW_M", "32")
	t.Setenv("AKIDB_HNSW_EF_CONSTRUCTION", "4")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when ef_construction < m")
	}
	if !contains(err.Error(), "AKIDB_HNSW_EF_CONSTRUCTION") {
		t.Fatalf("error should mention AKIDB_HNSW_EF_CONSTRUCTION, got: %s", err.Error())
	}
}

func TestLoad_CompressionLevelOutOfRange(t *testing.T) {
	t.Setenv("AKIDB_COMPRESSION_LEVEL", "99")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail on out-of-range compression level")
	}
}

func TestLoad_BloomFalsePositiveOutOfRange(t *testing.T) {
	t.Setenv("AKIDB_TIER_BLOOM_FALSE_POSITIVE", "1.5")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when bloom false-positive rate is out of (0,1)")
	}
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("AKIDB_HNSW_M", "16")
	t.Setenv("AKIDB_HNSW_EF_CONSTRUCTION", "100")
	t.Setenv("AKIDB_HNSW_EF_SEARCH", "48")
	t.Setenv("AKIDB_COMPRESSION_LEVEL", "6")
	t.Setenv("AKIDB_WAL_SEGMENT_ROLL_BYTES", "1048576")
	t.Setenv("AKIDB_TIER_HOT_MAX_BYTES", "2097152")
	t.Setenv("AKIDB_TIER_PROMOTION_THRESHOLD", "5")
	t.Setenv("AKIDB_TIER_WINDOW", "2m")
	t.Setenv("AKIDB_TIER_DEMOTION_IDLE", "10m")
	t.Setenv("AKIDB_TIER_BLOOM_FALSE_POSITIVE", "0.02")
	t.Setenv("AKIDB_MANIFEST_MAX_RETRIES", "8")
	t.Setenv("AKIDB_SEGMENT_BUILDER_POLL_INTERVAL", "1500ms")
	t.Setenv("AKIDB_SEGMENT_BUILDER_BATCH_SIZE", "2500")
	t.Setenv("AKIDB_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.HNSWM != 16 {
		t.Fatalf("expected HNSWM 16, got %d", cfg.HNSWM)
	}
	if cfg.HNSWEfConstruction != 100 {
		t.Fatalf("expected HNSWEfConstruction 100, got %d", cfg.HNSWEfConstruction)
	}
	if cfg.HNSWEfSearch != 48 {
		t.Fatalf("expected HNSWEfSearch 48, got %d", cfg.HNSWEfSearch)
	}
	if cfg.CompressionLevel != 6 {
		t.Fatalf("expected CompressionLevel 6, got %d", cfg.CompressionLevel)
	}
	if cfg.WALSegmentRollBytes != 1048576 {
		t.Fatalf("expected WALSegmentRollBytes 1048576, got %d", cfg.WALSegmentRollBytes)
	}
	if cfg.TierHotMaxBytes != 2097152 {
		t.Fatalf("expected TierHotMaxBytes 2097152, got %d", cfg.TierHotMaxBytes)
	}
	if cfg.TierPromotionThreshold != 5 {
		t.Fatalf("expected TierPromotionThreshold 5, got %d", cfg.TierPromotionThreshold)
	}
	if cfg.TierWindow.String() != "2m0s" {
		t.Fatalf("expected TierWindow 2m0s, got %s", cfg.TierWindow)
	}
	if cfg.TierDemotionIdle.String() != "10m0s" {
		t.Fatalf("expected TierDemotionIdle 10m0s, got %s", cfg.TierDemotionIdle)
	}
	if cfg.TierBloomFalsePositive != 0.02 {
		t.Fatalf("expected TierBloomFalsePositive 0.02, got %f", cfg.TierBloomFalsePositive)
	}
	if cfg.ManifestMaxRetries != 8 {
		t.Fatalf("expected ManifestMaxRetries 8, got %d", cfg.ManifestMaxRetries)
	}
	if cfg.SegmentBuilderPollInterval.String() != "1.5s" {
		t.Fatalf("expected SegmentBuilderPollInterval 1.5s, got %s", cfg.SegmentBuilderPollInterval)
	}
	if cfg.SegmentBuilderBatchSize != 2500 {
		t.Fatalf("expected SegmentBuilderBatchSize 2500, got %d", cfg.SegmentBuilderBatchSize)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
}
