// Package flight coalesces concurrent computations for the same key so an
// expensive factory runs at most once while every concurrent caller shares
// the outcome.
package flight

import (
	"context"
	"sync"
)

// Group tracks in-flight computations per key K. The first caller for a
// given key becomes the leader and starts fn; followers wait for the shared
// result.
//
// Concurrency notes:
//   - fn runs in its own goroutine and is NOT preemptible: cancelling ctx
//     unblocks only that caller (leader included) with ctx.Err(), while fn
//     runs to completion and publishes its result for late joiners.
//   - Publishing (val, err) happens-before close(c.done), so reads after
//     <-done observe the final values.
//   - The in-flight marker is removed on success and on failure alike, so
//     the next call after completion starts a fresh computation.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// Do returns the result of fn for key, running fn at most once across all
// concurrent callers of the same key. shared reports whether this caller
// joined an already in-flight computation instead of starting one.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		return wait(ctx, c, true)
	}

	// We are the leader for this key. The computation is detached from our
	// ctx: an abandoned leader must not kill the work other callers (or
	// the cache) are waiting on.
	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	go func() {
		c.val, c.err = fn()

		// Remove the marker before waking waiters so a caller arriving
		// after completion starts fresh instead of observing a stale call.
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()

		close(c.done)
	}()

	return wait(ctx, c, false)
}

func wait[V any](ctx context.Context, c *call[V], shared bool) (V, error, bool) {
	select {
	case <-c.done:
		return c.val, c.err, shared
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err(), shared
	}
}

// Len returns the number of computations currently in flight.
func (g *Group[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// Clear forgets all in-flight markers. Running computations complete and
// deliver to callers already waiting on them, but subsequent calls start
// fresh.
func (g *Group[K, V]) Clear() {
	g.mu.Lock()
	g.m = nil
	g.mu.Unlock()
}
