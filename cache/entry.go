package cache

// entry is an intrusive doubly linked list element owned by the store.
// It stores the key/value alongside list links and metadata used for
// TTL, byte accounting, and tag membership.
type entry struct {
	key string
	val any

	// Intrusive list links in insertion order: head is newest, tail is oldest.
	prev *entry
	next *entry

	// Absolute expiration deadline in UnixNano.
	// Zero means "no TTL".
	exp int64

	// Estimated footprint in bytes, charged against the store's byte budget.
	size int64

	// Tags this entry is registered under. Kept on the entry so every
	// removal path (delete, expiry, eviction, clear) can detach the key
	// from the tag index.
	tags []string
}
