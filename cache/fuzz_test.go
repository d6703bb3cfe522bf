//go:build go1.18

package cache

import (
	"strings"
	"testing"
	"time"
)

// Fuzz basic Set/Get/Delete and bulk-delete semantics under arbitrary
// string inputs. Guards against panics and ensures core invariants hold.
// NOTE: We cap key/value lengths to avoid pathological memory usage
// during fuzzing (this does not weaken the invariants we check).
func FuzzCache_SetGetDelete(f *testing.F) {
	// Seed corpus: empty, ASCII, colon-structured, Unicode, long strings.
	f.Add("", "")
	f.Add("a", "1")
	f.Add("revenue:s1:overview", "report")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		// Cap lengths to keep memory bounded during fuzzing.
		const limit = 1 << 12 // 4096
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		c := New(Options{MaxMemoryBytes: 1 << 20, SweepInterval: time.Hour})
		t.Cleanup(func() { _ = c.Close() })

		// Set -> Get must return the same value.
		c.Set(k, v, 0)
		got, ok := c.Get(k)
		if !ok || got != v {
			t.Fatalf("after Set/Get: want %q, got %v ok=%v", v, got, ok)
		}

		// Budget invariant must hold for any input.
		if st := c.Stats(); st.MemoryUsageBytes > c.MaxMemoryBytes() {
			t.Fatalf("usage %d exceeds budget", st.MemoryUsageBytes)
		}

		// Prefix delete with the whole key as prefix removes it.
		if n := c.DeletePattern(k); n < 1 {
			t.Fatalf("DeletePattern(%q) must remove at least the key itself, got %d", k, n)
		}
		if _, ok := c.Get(k); ok {
			t.Fatalf("key must be absent after DeletePattern")
		}

		// Delete on an absent key must be false; re-set then delete true.
		if c.Delete(k) {
			t.Fatalf("Delete on absent key returned true")
		}
		c.Set(k, v, 0)
		if !c.Delete(k) {
			t.Fatalf("Delete must return true")
		}
	})
}
