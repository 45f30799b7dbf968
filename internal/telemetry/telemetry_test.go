package telemetry

import (
	"context"
	"testing"
)

type fakeWALStats struct{ entries, bytes uint64 }

func (f fakeWALStats) EntriesAppended() uint64 { return f.entries }
func (f fakeWALStats) BytesAppended() uint64   { return f.bytes }

type fakeTierStats struct{ hits, misses uint64 }

func (f fakeTierStats) Hits() uint64   { return f.hits }
func (f fakeTierStats) Misses() uint64 { return f.misses }
func (f fakeTierStats) Len() int       { return 1 }

type fakeManifestStats struct{ retries uint64 }

func (f fakeManifestStats) ConflictRetries() uint64 { return f.retries }

func TestInitReturnsWorkingShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), "akidb-test", "0.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestRegisterMetricsDoesNotPanic(t *testing.T) {
	if _, err := Init(context.Background(), "akidb-test", "0.0.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	RegisterWALMetrics("widgets", fakeWALStats{entries: 3, bytes: 128})
	RegisterTierMetrics(fakeTierStats{hits: 2, misses: 1})
	RegisterManifestMetrics(fakeManifestStats{retries: 1})
}

func TestMeterReturnsNonNilMeter(t *testing.T) {
	if Meter("akidb/test") == nil {
		t.Fatal("expected a non-nil meter")
	}
}
