package util

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// Fnv64a hashes b using 64-bit FNV-1a. Fast, allocation-free, and good
// enough for cache-key digests (not for anything adversarial).
func Fnv64a(b []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}
