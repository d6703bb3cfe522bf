package cache

import (
	"context"
	"time"
)

// Remote is the contract for an optional shared cache tier coordinating
// multiple process instances (typically Redis). Values are opaque JSON
// bytes; the facade owns encoding.
//
// Every method is best-effort from the cache's point of view: the facade
// logs failures and degrades to local-only behavior, it never surfaces
// remote errors to callers. Implementations should bound each operation
// with their own timeout.
type Remote interface {
	// Get returns the stored bytes for key and whether the key was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix and DeleteBySuffix bulk-remove matching keys.
	DeleteByPrefix(ctx context.Context, prefix string) error
	DeleteBySuffix(ctx context.Context, suffix string) error

	// AcquireLock attempts to take a short-lived computation lock for key.
	// It returns false without error when another holder owns the lock.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ReleaseLock releases a lock taken by this process. Releasing a lock
	// held by someone else (e.g. after expiry) is a no-op.
	ReleaseLock(ctx context.Context, key string) error

	// TagAdd registers keys under tag; TagMembers lists them; TagDelete
	// drops the tag set itself.
	TagAdd(ctx context.Context, tag string, keys ...string) error
	TagMembers(ctx context.Context, tag string) ([]string, error)
	TagDelete(ctx context.Context, tag string) error
}
