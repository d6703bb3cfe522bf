package cache

import (
	"context"
	"time"
)

// Factory computes a value on cache miss. It is supplied by the caller
// (typically a closure over the persistence layer); the cache never queries
// storage directly.
type Factory func(ctx context.Context) (any, error)

// Cache is the public facade over the local tier, the request coalescer,
// the tag index, and the optional distributed tier.
// All methods are safe for concurrent use by multiple goroutines.
//
// Only GetOrSet and GetOrSetWithTags may block (factory execution, remote
// lock, remote poll); every other operation is synchronous.
type Cache interface {
	// Get returns the value for key if present and unexpired.
	Get(key string) (any, bool)

	// Set stores key→value with the given TTL (0 = DefaultTTL, negative =
	// no expiry). The requested TTL may be scaled down under memory
	// pressure. Oversized values are rejected with a log, not an error.
	Set(key string, value any, ttl time.Duration)

	// SetWithTags is Set plus registration of key under each tag for bulk
	// invalidation.
	SetWithTags(key string, value any, ttl time.Duration, tags ...string)

	// Delete removes key locally and, best-effort, remotely.
	// Deleting an absent key is a no-op and returns false.
	Delete(key string) bool

	// Clear drops all entries and all in-flight pending computations.
	Clear()

	// GetOrSet returns the cached value for key or computes it via
	// factory, coalescing concurrent callers so the factory runs at most
	// once per flight. A factory error is propagated to every coalesced
	// caller and nothing is cached.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, factory Factory) (any, error)

	// GetOrSetWithTags is GetOrSet plus tag registration on success.
	GetOrSetWithTags(ctx context.Context, key string, ttl time.Duration, tags []string, factory Factory) (any, error)

	// DeletePattern removes every key starting with prefix and returns the
	// local count removed.
	DeletePattern(prefix string) int

	// DeleteSuffix removes every key ending with suffix and returns the
	// local count removed.
	DeleteSuffix(suffix string) int

	// InvalidateTag deletes every key registered under tag and returns the
	// local count removed.
	InvalidateTag(tag string) int

	// Stats returns a snapshot of cache activity.
	Stats() Stats

	// ResetStats zeroes the hit/miss counters without touching entries.
	ResetStats()

	// MaxMemoryBytes returns the configured byte budget.
	MaxMemoryBytes() int64

	// Close stops background workers and marks the cache closed.
	Close() error
}
