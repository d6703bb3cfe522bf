package cache

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamlytics/querycache/internal/util"
)

// oversizeDenom caps a single entry at 1/4 of the total byte budget.
// One oversized report must not starve the rest of the cache.
const oversizeDenom = 4

// store is the local tier: a key→entry map plus an intrusive doubly linked
// list in insertion order (head=newest, tail=oldest), a hard byte budget,
// and secondary indexes for tags and colon-delimited key segments.
//
// One mutex serializes every mutation so the byte-accounting invariant
// (usage == sum of live entry sizes) holds across map, list, and indexes.
// The background sweep takes the same lock as foreground mutators.
type store struct {
	// ---- guarded by mu ----
	mu    sync.Mutex
	m     map[string]*entry
	head  *entry // newest
	tail  *entry // oldest, evicted first
	usage int64  // sum of entry sizes
	cap   int64  // byte budget

	// tag -> set of keys registered under it.
	tags map[string]map[string]struct{}

	// First/last colon-delimited segment -> set of keys. Narrows the
	// candidate set for prefix/suffix bulk deletes.
	bySegFirst map[string]map[string]struct{}
	bySegLast  map[string]map[string]struct{}

	opt Options

	stop     chan struct{}
	stopOnce sync.Once

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// newStore initializes the local tier and starts the expiry sweep.
func newStore(opt Options) *store {
	s := &store{
		m:          make(map[string]*entry),
		cap:        opt.MaxMemoryBytes,
		tags:       make(map[string]map[string]struct{}),
		bySegFirst: make(map[string]map[string]struct{}),
		bySegLast:  make(map[string]map[string]struct{}),
		opt:        opt,
		stop:       make(chan struct{}),
	}
	go s.sweepLoop(opt.SweepInterval)
	return s
}

// set inserts or replaces key→val. deadline is an absolute UnixNano
// expiration (0 = no TTL). Returns false when the entry was rejected as
// oversized; a failed cache write is a non-fatal degradation, not an error.
func (s *store) set(key string, val any, deadline int64, tags []string) bool {
	size := estimateSize(val)
	if size*oversizeDenom > s.cap {
		s.opt.Logger.Warn("cache: entry exceeds 25% of capacity, not stored",
			zap.String("key", key),
			zap.Int64("size_bytes", size),
			zap.Int64("capacity_bytes", s.cap))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[key]; ok {
		// In-place update: old size is released before the new one is
		// charged. The entry keeps its original queue position (FIFO).
		s.usage += size - n.size
		n.val = val
		n.exp = deadline
		n.size = size
		s.detachTagsLocked(n)
		n.tags = tags
		s.attachTagsLocked(n)
		// Absorb growth by evicting other entries oldest-first, never the
		// one just written: a committed set stays readable (read-your-write)
		// even when it sits at the oldest queue position.
		for s.usage > s.cap {
			victim := s.tail
			if victim == n {
				victim = victim.prev
			}
			if victim == nil {
				break
			}
			s.evictLocked(victim, EvictCapacity)
		}
		s.opt.Metrics.Size(len(s.m), s.usage)
		return true
	}

	// Evict oldest-first until the newcomer fits.
	s.evictUntilFitsLocked(size)

	n := &entry{key: key, val: val, exp: deadline, size: size, tags: tags}
	s.m[key] = n
	s.pushFrontLocked(n)
	s.attachTagsLocked(n)
	s.indexSegmentsLocked(key)
	s.opt.Metrics.Size(len(s.m), s.usage)
	return true
}

// get returns the value for key if present and unexpired.
// An expired entry is removed lazily and counted as a miss.
// Reads do not promote: eviction order stays pure insertion FIFO.
func (s *store) get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		return nil, false
	}
	if s.expiredLocked(n) {
		s.evictLocked(n, EvictTTL)
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		return nil, false
	}
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.val, true
}

// peek is get without hit/miss accounting. The flight leader double-checks
// the store after winning the flight; the caller's fast-path lookup already
// counted that logical miss, so counting here would inflate the miss rate.
func (s *store) peek(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if s.expiredLocked(n) {
		s.evictLocked(n, EvictTTL)
		return nil, false
	}
	return n.val, true
}

// delete removes key if present. Deleting an absent key is a no-op.
func (s *store) delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		return false
	}
	s.removeLocked(n)
	s.opt.Metrics.Size(len(s.m), s.usage)
	return true
}

// deleteByPrefix removes every key starting with prefix and returns the count.
// When the prefix spans at least one whole colon segment, the segment index
// narrows the scan to candidate keys; otherwise all keys are scanned.
func (s *store) deleteByPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var victims []*entry
	if i := strings.IndexByte(prefix, ':'); i >= 0 {
		for key := range s.bySegFirst[prefix[:i]] {
			if strings.HasPrefix(key, prefix) {
				victims = append(victims, s.m[key])
			}
		}
	} else {
		for key, n := range s.m {
			if strings.HasPrefix(key, prefix) {
				victims = append(victims, n)
			}
		}
	}
	for _, n := range victims {
		s.removeLocked(n)
	}
	s.opt.Metrics.Size(len(s.m), s.usage)
	return len(victims)
}

// deleteBySuffix is the mirror of deleteByPrefix over key suffixes,
// indexed by the last colon segment.
func (s *store) deleteBySuffix(suffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var victims []*entry
	if i := strings.LastIndexByte(suffix, ':'); i >= 0 {
		for key := range s.bySegLast[suffix[i+1:]] {
			if strings.HasSuffix(key, suffix) {
				victims = append(victims, s.m[key])
			}
		}
	} else {
		for key, n := range s.m {
			if strings.HasSuffix(key, suffix) {
				victims = append(victims, n)
			}
		}
	}
	for _, n := range victims {
		s.removeLocked(n)
	}
	s.opt.Metrics.Size(len(s.m), s.usage)
	return len(victims)
}

// clear drops all entries and indexes in one shot.
func (s *store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m = make(map[string]*entry)
	s.head, s.tail = nil, nil
	s.usage = 0
	s.tags = make(map[string]map[string]struct{})
	s.bySegFirst = make(map[string]map[string]struct{})
	s.bySegLast = make(map[string]map[string]struct{})
	s.opt.Metrics.Size(0, 0)
}

// len returns the number of resident entries.
func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// usageBytes returns the tracked aggregate memory usage.
func (s *store) usageBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// close stops the sweep goroutine. Idempotent.
func (s *store) close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// -------------------- internals (mu held) --------------------

func (s *store) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (s *store) expiredLocked(n *entry) bool {
	if n.exp == 0 {
		return false
	}
	return s.now() > n.exp
}

// pushFrontLocked inserts n at the newest end in O(1).
func (s *store) pushFrontLocked(n *entry) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.usage += n.size
}

// unlinkLocked detaches n from the list and releases its size in O(1).
func (s *store) unlinkLocked(n *entry) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.usage -= n.size
	if s.usage < 0 {
		s.usage = 0
	}
}

// removeLocked fully removes an entry: list, map, tags, segment indexes.
func (s *store) removeLocked(n *entry) {
	s.unlinkLocked(n)
	delete(s.m, n.key)
	s.detachTagsLocked(n)
	s.dropSegmentsLocked(n.key)
}

// evictLocked removes the entry and reports the eviction.
func (s *store) evictLocked(n *entry, reason EvictReason) {
	s.removeLocked(n)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		// Callbacks run under the store lock; keep them lightweight.
		cb(n.key, n.val, reason)
	}
}

// evictUntilFitsLocked evicts oldest-first until incoming additional
// bytes fit inside the budget.
func (s *store) evictUntilFitsLocked(incoming int64) {
	for s.usage+incoming > s.cap {
		if s.tail == nil {
			break
		}
		s.evictLocked(s.tail, EvictCapacity)
	}
}

func (s *store) indexSegmentsLocked(key string) {
	first, last := splitSegments(key)
	addSeg(s.bySegFirst, first, key)
	addSeg(s.bySegLast, last, key)
}

func (s *store) dropSegmentsLocked(key string) {
	first, last := splitSegments(key)
	dropSeg(s.bySegFirst, first, key)
	dropSeg(s.bySegLast, last, key)
}

// -------------------- sweep --------------------

// sweepLoop periodically removes expired entries in the background.
// It holds the store lock only for the duration of one pass and exits
// when the store is closed.
func (s *store) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.sweep()
		}
	}
}

// sweep removes all currently expired entries.
func (s *store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*entry
	for _, n := range s.m {
		if s.expiredLocked(n) {
			expired = append(expired, n)
		}
	}
	for _, n := range expired {
		s.evictLocked(n, EvictTTL)
	}
	if len(expired) > 0 {
		s.opt.Metrics.Size(len(s.m), s.usage)
	}
}
