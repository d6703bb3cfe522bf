package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/streamlytics/querycache/internal/flight"
)

// ErrNoFactory is returned by GetOrSet when the factory argument is nil.
var ErrNoFactory = errors.New("cache: no factory provided")

// errNotPublished signals one more poll iteration while waiting for another
// process to publish a value to the remote tier.
var errNotPublished = errors.New("cache: remote value not published yet")

// cache composes the local store, the coalescer, and the optional remote
// tier behind the Cache interface. Construct one instance at process start
// and pass it into handlers; there is no package-level singleton.
type cache struct {
	store  *store
	sf     flight.Group[string, any]
	opt    Options
	closed atomic.Bool
}

// New constructs a Cache with the provided Options.
// Panics if MaxMemoryBytes is not positive.
func New(opt Options) Cache {
	if opt.MaxMemoryBytes <= 0 {
		panic("cache: MaxMemoryBytes must be > 0")
	}
	opt.applyDefaults()
	return &cache{
		store: newStore(opt),
		opt:   opt,
	}
}

// ---- Cache implementation ----

func (c *cache) Get(key string) (any, bool) {
	if c.closed.Load() {
		return nil, false
	}
	return c.store.get(key)
}

func (c *cache) Set(key string, value any, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	c.put(key, value, ttl, nil)
}

func (c *cache) SetWithTags(key string, value any, ttl time.Duration, tags ...string) {
	if c.closed.Load() {
		return
	}
	c.put(key, value, ttl, tags)
}

func (c *cache) Delete(key string) bool {
	if c.closed.Load() {
		return false
	}
	ok := c.store.delete(key)
	if r := c.opt.Remote; r != nil {
		// Mirror asynchronously: Delete must not block on network I/O.
		go func() {
			if err := r.Delete(context.Background(), key); err != nil {
				c.remoteDegraded("delete", key, err)
			}
		}()
	}
	return ok
}

func (c *cache) Clear() {
	if c.closed.Load() {
		return
	}
	c.store.clear()
	c.sf.Clear()
}

func (c *cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory Factory) (any, error) {
	return c.GetOrSetWithTags(ctx, key, ttl, nil, factory)
}

func (c *cache) GetOrSetWithTags(ctx context.Context, key string, ttl time.Duration, tags []string, factory Factory) (any, error) {
	if factory == nil {
		return nil, ErrNoFactory
	}
	if c.closed.Load() {
		// Closed cache degrades to a pass-through.
		return factory(ctx)
	}

	// Fast path.
	if v, ok := c.store.get(key); ok {
		return v, nil
	}

	// The computation must survive caller abandonment: it runs on a
	// context detached from ctx and still populates the cache for later
	// callers, while ctx only bounds this caller's wait.
	bg := context.WithoutCancel(ctx)
	v, err, shared := c.sf.Do(ctx, key, func() (any, error) {
		// Double-check after winning the flight. peek leaves the hit/miss
		// counters alone; the fast path above already counted this lookup.
		if v, ok := c.store.peek(key); ok {
			return v, nil
		}
		return c.loadOrCompute(bg, key, ttl, tags, factory)
	})
	if shared {
		c.opt.Metrics.Coalesced()
	}
	return v, err
}

func (c *cache) DeletePattern(prefix string) int {
	if c.closed.Load() {
		return 0
	}
	n := c.store.deleteByPrefix(prefix)
	if r := c.opt.Remote; r != nil {
		go func() {
			if err := r.DeleteByPrefix(context.Background(), prefix); err != nil {
				c.remoteDegraded("delete by prefix", prefix, err)
			}
		}()
	}
	return n
}

func (c *cache) DeleteSuffix(suffix string) int {
	if c.closed.Load() {
		return 0
	}
	n := c.store.deleteBySuffix(suffix)
	if r := c.opt.Remote; r != nil {
		go func() {
			if err := r.DeleteBySuffix(context.Background(), suffix); err != nil {
				c.remoteDegraded("delete by suffix", suffix, err)
			}
		}()
	}
	return n
}

func (c *cache) InvalidateTag(tag string) int {
	if c.closed.Load() {
		return 0
	}
	n := c.store.invalidateTag(tag)
	if c.opt.Remote != nil {
		// One round-trip per member: keep it off the caller's path.
		go c.remoteInvalidateTag(tag)
	}
	return n
}

func (c *cache) Stats() Stats {
	h := c.store.hits.Load()
	m := c.store.misses.Load()
	return Stats{
		Hits:             h,
		Misses:           m,
		ItemCount:        c.store.len(),
		MemoryUsageBytes: c.store.usageBytes(),
		HitRatePercent:   hitRatePercent(h, m),
		PendingRequests:  c.sf.Len(),
	}
}

func (c *cache) ResetStats() {
	c.store.hits.Store(0)
	c.store.misses.Store(0)
	c.store.evicts.Store(0)
}

func (c *cache) MaxMemoryBytes() int64 { return c.opt.MaxMemoryBytes }

// Close stops the sweep goroutine and marks the cache closed.
// Future operations are ignored.
func (c *cache) Close() error {
	c.closed.Store(true)
	c.store.close()
	return nil
}

// ---- write path ----

// put resolves the effective TTL (default, then adaptive scaling under
// pressure) and stores the entry locally. Returns false when rejected as
// oversized.
func (c *cache) put(key string, value any, ttl time.Duration, tags []string) bool {
	if ttl == 0 {
		ttl = c.opt.DefaultTTL
	}
	ttl = adaptiveTTL(ttl, c.store.usageBytes(), c.opt.MaxMemoryBytes, c.opt.Pressure)
	return c.store.set(key, value, c.deadline(ttl), tags)
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *cache) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	now := time.Now().UnixNano()
	if c.opt.Clock != nil {
		now = c.opt.Clock.NowUnixNano()
	}
	return now + int64(ttl)
}

// ---- slow path (flight leader) ----

// loadOrCompute resolves a miss: remote hit, lock-and-compute, wait for
// another process, or local fallback — in that order. Remote failures only
// degrade to local behavior; factory errors propagate and cache nothing.
func (c *cache) loadOrCompute(ctx context.Context, key string, ttl time.Duration, tags []string, factory Factory) (any, error) {
	r := c.opt.Remote
	if r == nil {
		return c.computeAndStore(ctx, key, ttl, tags, factory)
	}

	// Another instance may have computed this already.
	if v, ok := c.remoteGet(ctx, key); ok {
		c.put(key, v, ttl, tags)
		return v, nil
	}

	lockKey := "lock:" + key
	locked, err := r.AcquireLock(ctx, lockKey, c.opt.RemoteLockTTL)
	if err != nil {
		c.remoteDegraded("acquire lock", key, err)
		return c.computeAndStore(ctx, key, ttl, tags, factory)
	}

	if locked {
		// Release runs whether the factory succeeds or fails.
		defer func() {
			if err := r.ReleaseLock(ctx, lockKey); err != nil {
				c.remoteDegraded("release lock", key, err)
			}
		}()

		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		c.put(key, v, ttl, tags)
		c.remotePut(ctx, key, v, ttl, tags)
		return v, nil
	}

	// Lock held elsewhere: poll for the published value instead of
	// recomputing.
	if v, ok := c.awaitRemote(ctx, key); ok {
		c.put(key, v, ttl, tags)
		return v, nil
	}

	// Retry budget exhausted. Accepted trade-off: at most one
	// recomputation per node, not one globally.
	return c.computeAndStore(ctx, key, ttl, tags, factory)
}

func (c *cache) computeAndStore(ctx context.Context, key string, ttl time.Duration, tags []string, factory Factory) (any, error) {
	v, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	c.put(key, v, ttl, tags)
	return v, nil
}

// ---- remote tier helpers (all best-effort) ----

func (c *cache) remoteGet(ctx context.Context, key string) (any, bool) {
	data, ok, err := c.opt.Remote.Get(ctx, key)
	if err != nil {
		c.remoteDegraded("get", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		c.remoteDegraded("decode", key, err)
		return nil, false
	}
	return v, true
}

func (c *cache) remotePut(ctx context.Context, key string, value any, ttl time.Duration, tags []string) {
	data, err := json.Marshal(value)
	if err != nil {
		c.remoteDegraded("encode", key, err)
		return
	}
	if ttl == 0 {
		ttl = c.opt.DefaultTTL
	}
	if err := c.opt.Remote.Set(ctx, key, data, ttl); err != nil {
		c.remoteDegraded("set", key, err)
		return
	}
	for _, tag := range tags {
		if err := c.opt.Remote.TagAdd(ctx, tag, key); err != nil {
			c.remoteDegraded("tag add", key, err)
		}
	}
}

// awaitRemote polls the remote store with constant backoff until the value
// appears, the retry budget runs out, or ctx is done.
func (c *cache) awaitRemote(ctx context.Context, key string) (any, bool) {
	var found any
	poll := func() error {
		v, ok := c.remoteGet(ctx, key)
		if !ok {
			return errNotPublished
		}
		found = v
		return nil
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(c.opt.RemotePollInterval),
			uint64(c.opt.RemotePollRetries)),
		ctx)
	if err := backoff.Retry(poll, bo); err != nil {
		return nil, false
	}
	return found, true
}

func (c *cache) remoteInvalidateTag(tag string) {
	r := c.opt.Remote
	if r == nil {
		return
	}
	ctx := context.Background()
	keys, err := r.TagMembers(ctx, tag)
	if err != nil {
		c.remoteDegraded("tag members", tag, err)
		return
	}
	for _, key := range keys {
		if err := r.Delete(ctx, key); err != nil {
			c.remoteDegraded("delete", key, err)
		}
	}
	if err := r.TagDelete(ctx, tag); err != nil {
		c.remoteDegraded("tag delete", tag, err)
	}
}

func (c *cache) remoteDegraded(op, key string, err error) {
	c.opt.Logger.Warn("cache: remote tier degraded, continuing local-only",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err))
}
