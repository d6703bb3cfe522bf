package cache

import "strings"

// Keys follow the dashboard convention "area:subject:view", e.g.
// "revenue:streamer42:overview". Indexing the first and last colon segment
// lets bulk deletes by prefix/suffix touch only candidate keys instead of
// scanning the whole map.

// splitSegments returns the first and last colon-delimited segment of key.
// A key without a colon is its own first and last segment.
func splitSegments(key string) (first, last string) {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return key, key
	}
	j := strings.LastIndexByte(key, ':')
	return key[:i], key[j+1:]
}

func addSeg(idx map[string]map[string]struct{}, seg, key string) {
	set := idx[seg]
	if set == nil {
		set = make(map[string]struct{})
		idx[seg] = set
	}
	set[key] = struct{}{}
}

func dropSeg(idx map[string]map[string]struct{}, seg, key string) {
	set := idx[seg]
	delete(set, key)
	if len(set) == 0 {
		delete(idx, seg)
	}
}
