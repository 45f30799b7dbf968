package akidb

import (
	"log/slog"
	"os"
	"time"

	"github.com/akidb/akidb/internal/clock"
	"github.com/akidb/akidb/internal/config"
	"github.com/akidb/akidb/internal/tier"
)

// Option customizes a DB constructed by New. The zero value of every field
// it can set is a sane production default — most callers pass none.
type Option func(*resolvedOptions)

// resolvedOptions accumulates every extension point New understands before
// New wires collaborators together.
type resolvedOptions struct {
	logger     *slog.Logger
	clock      clock.Clock
	cfg        *config.Config
	warmDBPath string
	version    string
	cache      *tier.Cache
}

func defaultOptions() resolvedOptions {
	return resolvedOptions{
		logger:     slog.New(slog.NewTextHandler(os.Stdout, nil)),
		clock:      clock.Real(),
		warmDBPath: "akidb-warm.db",
		version:    "dev",
	}
}

// WithLogger overrides the logger every collection and subsystem logs
// through. Defaults to a text handler on os.Stdout.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithClock overrides the time source the tier cache's access timestamps
// and idle demotion are measured against. Tests needing deterministic tier
// windows should pass a clock.Fake here.
func WithClock(c clock.Clock) Option {
	return func(o *resolvedOptions) { o.clock = c }
}

// WithConfig supplies a pre-loaded, pre-validated Config instead of letting
// New call config.Load() against the process environment.
func WithConfig(cfg config.Config) Option {
	return func(o *resolvedOptions) { o.cfg = &cfg }
}

// WithWarmDBPath overrides the local SQLite file the tier cache's warm
// metadata layer is opened against.
func WithWarmDBPath(path string) Option {
	return func(o *resolvedOptions) { o.warmDBPath = path }
}

// WithVersion sets the service version attached to emitted telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithSharedCache attaches an already-open tier cache instead of letting New
// open one against warmDBPath. Use this when multiple DB instances in the
// same process must share one hot tier over a common object store, per
// tier.Cache's own "one Cache is shared across every collection it serves"
// design.
func WithSharedCache(cache *tier.Cache) Option {
	return func(o *resolvedOptions) { o.cache = cache }
}

func (o resolvedOptions) policy() tier.Policy {
	if o.cfg == nil {
		return tier.DefaultPolicy()
	}
	return tier.Policy{
		HotMaxBytes:          o.cfg.TierHotMaxBytes,
		PromotionThreshold:   o.cfg.TierPromotionThreshold,
		Window:               o.cfg.TierWindow,
		DemotionIdleDuration: o.cfg.TierDemotionIdle,
	}
}

func (o resolvedOptions) sealPollInterval() time.Duration {
	if o.cfg == nil {
		return 5 * time.Second
	}
	return o.cfg.SegmentBuilderPollInterval
}

func (o resolvedOptions) sealBatchSize() int {
	if o.cfg == nil {
		return 10000
	}
	return o.cfg.SegmentBuilderBatchSize
}

func (o resolvedOptions) walRollBytes() int64 {
	if o.cfg == nil {
		return 64 << 20
	}
	return o.cfg.WALSegmentRollBytes
}

func (o resolvedOptions) compressionLevel() int {
	if o.cfg == nil {
		return 3
	}
	return o.cfg.CompressionLevel
}

func (o resolvedOptions) manifestMaxRetries() int {
	if o.cfg == nil {
		return 5
	}
	return o.cfg.ManifestMaxRetries
}
