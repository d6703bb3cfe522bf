package cache

import (
	"time"

	"go.uber.org/zap"
)

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache behavior. Zero values are safe;
// sane defaults are applied in New():
//   - nil Metrics        => NoopMetrics
//   - nil Logger         => zap.NewNop()
//   - zero SweepInterval => 1 minute
//   - zero Pressure      => 0.70/0.90 thresholds, 0.5/0.25 factors
type Options struct {
	// MaxMemoryBytes is the hard byte budget for the local tier.
	// Must be > 0. A single entry larger than 25% of this budget is
	// rejected rather than stored.
	MaxMemoryBytes int64

	// DefaultTTL applies when a write passes ttl == 0
	// (0 = such entries never expire).
	DefaultTTL time.Duration

	// SweepInterval is how often the background sweep removes expired
	// entries.
	SweepInterval time.Duration

	// Pressure controls adaptive TTL scaling as the budget fills.
	Pressure Pressure

	// Remote is the optional distributed tier. Nil disables two-tier
	// behavior entirely. All remote operations are best-effort and never
	// surface errors to callers; the local tier stays authoritative.
	Remote Remote

	// RemoteLockTTL bounds how long the per-key computation lock outlives
	// a crashed holder.
	RemoteLockTTL time.Duration

	// RemotePollInterval and RemotePollRetries bound how long a caller
	// waits for another process to publish a value before recomputing
	// locally.
	RemotePollInterval time.Duration
	RemotePollRetries  int

	// Observability.
	// OnEvict is called on eviction under the store lock; keep callbacks
	// lightweight.
	OnEvict func(key string, value any, reason EvictReason)
	Metrics Metrics
	Logger  *zap.Logger

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}

func (o *Options) applyDefaults() {
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.Pressure == (Pressure{}) {
		o.Pressure = defaultPressure()
	}
	if o.RemoteLockTTL <= 0 {
		o.RemoteLockTTL = 10 * time.Second
	}
	if o.RemotePollInterval <= 0 {
		o.RemotePollInterval = 100 * time.Millisecond
	}
	if o.RemotePollRetries <= 0 {
		o.RemotePollRetries = 10
	}
}
