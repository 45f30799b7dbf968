// Package telemetry initializes an in-process OpenTelemetry meter provider
// and registers the core's observable gauges and counters. Metric
// *exporters* are out of scope: nothing here ships readings to a remote
// collector, matching the teacher's own separation of the provider from
// the transport that drains it.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown tears down whatever Init set up.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry meter provider with serviceName
// and version attached as resource attributes, and returns a shutdown
// function that must be called on graceful shutdown. With no reader
// attached, the provider records readings in process without shipping them
// anywhere; a reader can be attached later via sdkmetric.WithReader without
// touching any call site that already holds a *metric.Meter.
func Init(ctx context.Context, serviceName, version string) (Shutdown, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return mp.Shutdown(ctx)
	}, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// walStats is the subset of *wal.WAL's stats surface telemetry depends on,
// kept narrow so this package never imports internal/wal.
type walStats interface {
	EntriesAppended() uint64
	BytesAppended() uint64
}

// RegisterWALMetrics registers observable counters for one WAL stream's
// cumulative append activity, mirroring the teacher's
// trace.WAL.registerMetrics shape (callback-backed gauges over the live
// component rather than push-based recording).
func RegisterWALMetrics(streamID string, stats walStats) {
	meter := Meter("akidb/wal")
	attrs := metric.WithAttributes(attribute.String("stream_id", streamID))

	_, _ = meter.Int64ObservableCounter("akidb.wal.entries_appended",
		metric.WithDescription("Cumulative WAL entries appended"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.EntriesAppended()), attrs)
			return nil
		}),
	)

	_, _ = meter.Int64ObservableCounter("akidb.wal.bytes_appended",
		metric.WithDescription("Cumulative bytes appended to the WAL"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.BytesAppended()), attrs)
			return nil
		}),
	)
}

// tierStats is the subset of *tier.Cache's counters telemetry depends on.
type tierStats interface {
	Hits() uint64
	Misses() uint64
	Len() int
}

// RegisterTierMetrics registers hit/miss counters and a hot-tier resident
// gauge for a shared tier cache.
func RegisterTierMetrics(stats tierStats) {
	meter := Meter("akidb/tier")

	_, _ = meter.Int64ObservableCounter("akidb.tier.hot_hits",
		metric.WithDescription("Cumulative hot-tier cache hits"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.Hits()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableCounter("akidb.tier.hot_misses",
		metric.WithDescription("Cumulative hot-tier cache misses (served from warm or cold)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.Misses()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("akidb.tier.hot_resident_segments",
		metric.WithDescription("Segments currently resident in the hot tier"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.Len()))
			return nil
		}),
	)
}

// manifestStats is the subset of *manifest.Committer's counters telemetry
// depends on.
type manifestStats interface {
	ConflictRetries() uint64
}

// RegisterManifestMetrics registers a counter for optimistic-lock conflict
// retries observed by a manifest committer.
func RegisterManifestMetrics(stats manifestStats) {
	meter := Meter("akidb/manifest")

	_, _ = meter.Int64ObservableCounter("akidb.manifest.conflict_retries",
		metric.WithDescription("Cumulative optimistic-lock conflict retries during manifest mutation"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(stats.ConflictRetries()))
			return nil
		}),
	)
}
