package cache

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCapacity — removed oldest-first to satisfy the byte budget.
	EvictCapacity EvictReason = iota
	// EvictTTL — expired by TTL (lazily on access or by the sweep).
	EvictTTL
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
	// Coalesced is reported when a caller joins an in-flight computation
	// instead of invoking the factory itself.
	Coalesced()
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                          {}
func (NoopMetrics) Miss()                         {}
func (NoopMetrics) Evict(EvictReason)             {}
func (NoopMetrics) Size(entries int, bytes int64) {}
func (NoopMetrics) Coalesced()                    {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
