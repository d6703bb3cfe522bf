package cache

// Tag index: tag -> set of keys, many-to-many. Entries carry their tag
// memberships (entry.tags), so every removal path — explicit delete, lazy
// expiry, sweep, capacity eviction, clear — detaches the key from the
// index. The index therefore never accumulates stale keys, though
// invalidateTag still tolerates missing keys silently.

// invalidateTag deletes every key registered under tag and returns the
// number of entries actually removed.
func (s *store) invalidateTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.tags[tag] {
		if n, ok := s.m[key]; ok {
			s.removeLocked(n)
			removed++
		}
	}
	delete(s.tags, tag)
	s.opt.Metrics.Size(len(s.m), s.usage)
	return removed
}

func (s *store) attachTagsLocked(n *entry) {
	for _, tag := range n.tags {
		set := s.tags[tag]
		if set == nil {
			set = make(map[string]struct{})
			s.tags[tag] = set
		}
		set[n.key] = struct{}{}
	}
}

func (s *store) detachTagsLocked(n *entry) {
	for _, tag := range n.tags {
		set := s.tags[tag]
		delete(set, n.key)
		if len(set) == 0 {
			delete(s.tags, tag)
		}
	}
}
