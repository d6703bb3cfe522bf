package cache

import (
	"fmt"
	"testing"
	"time"
)

// newTestStore builds a store with defaults applied and the sweep
// effectively disabled so tests control expiry explicitly.
func newTestStore(capBytes int64, clk Clock) *store {
	opt := Options{
		MaxMemoryBytes: capBytes,
		SweepInterval:  time.Hour,
		Clock:          clk,
	}
	opt.applyDefaults()
	return newStore(opt)
}

// payload returns a []byte whose estimated footprint is exactly bytes.
func payload(bytes int64) []byte {
	return make([]byte, bytes-sizeHeader)
}

// Eleven ~100 KiB entries against a 1 MiB budget: the first insert must
// be evicted to make room for the eleventh, and usage must stay within
// the budget throughout.
func TestStore_CapacityEviction(t *testing.T) {
	t.Parallel()

	s := newTestStore(1<<20, nil)
	t.Cleanup(s.close)

	const entrySize = 100 << 10
	for i := 0; i < 11; i++ {
		s.set(fmt.Sprintf("report:%d", i), payload(entrySize), 0, nil)
		if got := s.usageBytes(); got > 1<<20 {
			t.Fatalf("usage %d exceeds budget after insert %d", got, i)
		}
	}

	if _, ok := s.get("report:0"); ok {
		t.Fatal("oldest entry must be evicted")
	}
	if _, ok := s.get("report:10"); !ok {
		t.Fatal("newest entry must be resident")
	}
	if got := s.len(); got != 10 {
		t.Fatalf("want 10 resident entries, got %d", got)
	}
	if got, want := s.usageBytes(), int64(10*entrySize); got != want {
		t.Fatalf("usage want %d, got %d", want, got)
	}
}

// A single value above 25% of the budget is rejected, not stored.
func TestStore_OversizeRejected(t *testing.T) {
	t.Parallel()

	s := newTestStore(1000, nil)
	t.Cleanup(s.close)

	if s.set("big", payload(300), 0, nil) {
		t.Fatal("oversized entry must be rejected")
	}
	if got := s.len(); got != 0 {
		t.Fatalf("store must stay empty, got %d entries", got)
	}
	if got := s.usageBytes(); got != 0 {
		t.Fatalf("usage must stay 0, got %d", got)
	}

	// At exactly 25% the entry is accepted.
	if !s.set("ok", payload(250), 0, nil) {
		t.Fatal("entry at 25% of budget must be accepted")
	}
}

// Eviction order is pure insertion FIFO: a read does not save an entry
// from being evicted first.
func TestStore_FIFONoPromotion(t *testing.T) {
	t.Parallel()

	s := newTestStore(1200, nil)
	t.Cleanup(s.close)

	s.set("a", payload(300), 0, nil)
	s.set("b", payload(300), 0, nil)
	s.set("c", payload(300), 0, nil)
	s.set("d", payload(300), 0, nil) // budget now full

	if _, ok := s.get("a"); !ok { // would promote under LRU
		t.Fatal("expect hit for a")
	}
	s.set("e", payload(300), 0, nil) // overflow -> evict oldest

	if _, ok := s.get("a"); ok {
		t.Fatal("a is oldest and must be evicted despite the recent read")
	}
	for _, k := range []string{"b", "c", "d", "e"} {
		if _, ok := s.get(k); !ok {
			t.Fatalf("%s must survive", k)
		}
	}
}

// Re-setting a key updates value and accounting in place but keeps the
// entry's original queue position.
func TestStore_UpdateKeepsQueuePosition(t *testing.T) {
	t.Parallel()

	s := newTestStore(1200, nil)
	t.Cleanup(s.close)

	s.set("a", payload(300), 0, nil)
	s.set("b", payload(300), 0, nil)
	s.set("a", payload(200), 0, nil) // update, still oldest

	if got, want := s.usageBytes(), int64(500); got != want {
		t.Fatalf("usage want %d, got %d", want, got)
	}

	s.set("c", payload(300), 0, nil)
	s.set("d", payload(300), 0, nil)
	s.set("e", payload(300), 0, nil) // overflow -> "a" goes first

	if _, ok := s.get("a"); ok {
		t.Fatal("a must be evicted first despite the update")
	}
	if _, ok := s.get("b"); !ok {
		t.Fatal("b must survive")
	}
}

// When an in-place update grows an entry past the budget, other entries
// are evicted oldest-first but never the one just written: a committed
// set stays readable even from the oldest queue position.
func TestStore_UpdateGrowthNeverEvictsSelf(t *testing.T) {
	t.Parallel()

	s := newTestStore(1000, nil)
	t.Cleanup(s.close)

	s.set("a", payload(100), 0, nil) // oldest
	s.set("b", payload(400), 0, nil)
	s.set("c", payload(400), 0, nil)

	if !s.set("a", payload(250), 0, nil) { // grows past the budget
		t.Fatal("update must be accepted")
	}
	if _, ok := s.get("a"); !ok {
		t.Fatal("just-updated entry must survive its own eviction pass")
	}
	if _, ok := s.get("b"); ok {
		t.Fatal("next-oldest entry must be evicted instead")
	}
	if _, ok := s.get("c"); !ok {
		t.Fatal("c must survive")
	}
	if got := s.usageBytes(); got > 1000 {
		t.Fatalf("usage %d exceeds budget", got)
	}
}

// Expired entries are removed lazily on read and counted as misses.
func TestStore_LazyExpiry(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	s := newTestStore(1<<20, clk)
	t.Cleanup(s.close)

	s.set("x", payload(100), clk.t+int64(100*time.Millisecond), nil)
	if _, ok := s.get("x"); !ok {
		t.Fatal("fresh miss")
	}

	clk.add(200 * time.Millisecond)
	if _, ok := s.get("x"); ok {
		t.Fatal("expired hit")
	}
	if got := s.len(); got != 0 {
		t.Fatalf("expired entry must be removed, got %d entries", got)
	}
	if got := s.usageBytes(); got != 0 {
		t.Fatalf("usage must drop to 0, got %d", got)
	}
}

// The sweep pass removes expired entries without a read touching them.
func TestStore_Sweep(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	s := newTestStore(1<<20, clk)
	t.Cleanup(s.close)

	s.set("stale", payload(100), clk.t+int64(time.Millisecond), nil)
	s.set("fresh", payload(100), 0, nil)

	clk.add(time.Second)
	s.sweep()

	if got := s.len(); got != 1 {
		t.Fatalf("want 1 entry after sweep, got %d", got)
	}
	if _, ok := s.get("fresh"); !ok {
		t.Fatal("unexpired entry must survive the sweep")
	}
}

// OnEvict fires for both capacity and TTL evictions with the right reason.
func TestStore_OnEvictReasons(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	var gotKeys []string
	var gotReasons []EvictReason

	opt := Options{
		MaxMemoryBytes: 1000,
		SweepInterval:  time.Hour,
		Clock:          clk,
		OnEvict: func(key string, _ any, reason EvictReason) {
			gotKeys = append(gotKeys, key)
			gotReasons = append(gotReasons, reason)
		},
	}
	opt.applyDefaults()
	s := newStore(opt)
	t.Cleanup(s.close)

	s.set("old", payload(250), 0, nil)
	s.set("ttl", payload(250), clk.t+1, nil)
	s.set("f1", payload(250), 0, nil)
	s.set("f2", payload(250), 0, nil)
	s.set("new", payload(250), 0, nil) // capacity eviction of "old"

	clk.add(time.Second)
	s.sweep() // TTL eviction of "ttl"

	if len(gotKeys) != 2 || gotKeys[0] != "old" || gotKeys[1] != "ttl" {
		t.Fatalf("unexpected eviction keys: %v", gotKeys)
	}
	if gotReasons[0] != EvictCapacity || gotReasons[1] != EvictTTL {
		t.Fatalf("unexpected eviction reasons: %v", gotReasons)
	}
}

// clear drops entries, indexes, and accounting in one shot.
func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := newTestStore(1<<20, nil)
	t.Cleanup(s.close)

	s.set("a:1", payload(100), 0, []string{"t"})
	s.set("b:2", payload(100), 0, nil)
	s.clear()

	if got := s.len(); got != 0 {
		t.Fatalf("want empty store, got %d entries", got)
	}
	if got := s.usageBytes(); got != 0 {
		t.Fatalf("usage must be 0, got %d", got)
	}
	if got := s.deleteByPrefix("a:"); got != 0 {
		t.Fatalf("segment index must be empty, deleteByPrefix removed %d", got)
	}
	if got := s.invalidateTag("t"); got != 0 {
		t.Fatalf("tag index must be empty, invalidateTag removed %d", got)
	}
}

func TestStore_DeleteAbsentKey(t *testing.T) {
	t.Parallel()

	s := newTestStore(1<<20, nil)
	t.Cleanup(s.close)

	if s.delete("nope") {
		t.Fatal("deleting an absent key must return false")
	}
}
