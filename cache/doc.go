// Package cache provides the adaptive caching engine that fronts the
// dashboard's expensive aggregate queries: a byte-bounded in-memory tier
// with FIFO eviction and TTL expiry, tag-based bulk invalidation, request
// coalescing against cache stampedes, adaptive TTL scaling under memory
// pressure, and an optional best-effort distributed tier.
//
// Design
//
//   - Storage: one map[string]*entry for lookups and an intrusive doubly
//     linked list in insertion order (head=newest, tail=oldest). A single
//     mutex serializes mutations so the byte-accounting invariant holds
//     across the map, the list, and the secondary indexes.
//
//   - Capacity: entries are charged their estimated footprint against a
//     hard byte budget (Options.MaxMemoryBytes). Writes evict oldest-first
//     until the newcomer fits; a single value above 25% of the budget is
//     rejected outright. Eviction is pure insertion-order FIFO — reads do
//     not promote.
//
//   - TTL: per-entry absolute deadlines (UnixNano, 0 = none). Expiration
//     is lazy on read plus a periodic background sweep. Requested TTLs are
//     scaled down under memory pressure (Options.Pressure).
//
//   - Tags: SetWithTags registers keys under semantic tags; InvalidateTag
//     bulk-deletes a tag's keys. Entries carry their memberships so every
//     removal path keeps the index consistent.
//
//   - Coalescing: GetOrSet runs the factory at most once per key per
//     flight; concurrent callers share the result or the error. The
//     computation is detached from the caller's context, so an abandoned
//     caller never cancels work other callers depend on.
//
//   - Remote tier: when Options.Remote is set, misses consult the shared
//     store first, take a short-lived per-key lock before computing, write
//     through to both tiers, and mirror deletes and tag invalidations.
//     Every remote failure degrades silently to local-only behavior.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size/Coalesced
//     signals. NoopMetrics is the default; a Prometheus adapter lives in
//     metrics/prom.
//
// Basic usage
//
//	c := cache.New(cache.Options{MaxMemoryBytes: 64 << 20})
//	defer c.Close()
//
//	v, err := c.GetOrSet(ctx, cache.Key("revenue.overview", params), 5*time.Minute,
//	    func(ctx context.Context) (any, error) {
//	        return queries.RevenueOverview(ctx, params)
//	    })
//
// With tags
//
//	c.SetWithTags("revenue:s1:overview", report, time.Minute, "streamer:s1")
//	c.InvalidateTag("streamer:s1") // drops every report for that streamer
//
// See options.go for all available Options fields and remote.go for the
// distributed tier contract implemented by remote/redis.
package cache
