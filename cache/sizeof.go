package cache

import "reflect"

// Size estimation constants. Scalars get a fixed small cost; strings are
// charged 2 bytes per byte of content (worst-case wide encoding) plus a
// header; composite values pay a per-field overhead on top of their
// contents.
const (
	sizeScalar    = 8
	sizeHeader    = 16
	sizeFieldCost = 16

	// sizeFallback is the conservative default charged when estimation
	// fails (panic, exotic kind). Overcharging is safer than undercounting
	// against a hard byte budget.
	sizeFallback = 1024

	// maxSizeDepth bounds traversal of deeply nested values.
	maxSizeDepth = 8

	// sizeSampleLimit bounds how many elements of a large collection are
	// walked; the sampled mean is extrapolated to the full length.
	sizeSampleLimit = 64
)

// estimateSize returns the approximate in-memory footprint of v in bytes.
// It terminates in bounded time on large or cyclic structures: traversal
// depth is capped, large collections are sampled, and already-visited
// pointers are skipped by identity. It never panics; any failure yields
// the fixed conservative default.
func estimateSize(v any) (size int64) {
	defer func() {
		if recover() != nil {
			size = sizeFallback
		}
	}()
	if v == nil {
		return sizeScalar
	}
	return sizeOfValue(reflect.ValueOf(v), 0, make(map[uintptr]struct{}))
}

func sizeOfValue(v reflect.Value, depth int, seen map[uintptr]struct{}) int64 {
	if depth > maxSizeDepth {
		return sizeHeader
	}

	switch v.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return sizeScalar

	case reflect.String:
		return sizeHeader + 2*int64(v.Len())

	case reflect.Slice, reflect.Array:
		n := v.Len()
		if n == 0 {
			return sizeHeader
		}
		// Byte slices are common payloads; charge them directly.
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return sizeHeader + int64(n)
		}
		sampled := n
		if sampled > sizeSampleLimit {
			sampled = sizeSampleLimit
		}
		var sum int64
		for i := 0; i < sampled; i++ {
			sum += sizeOfValue(v.Index(i), depth+1, seen)
		}
		// Extrapolate the sampled mean across the whole collection.
		return sizeHeader + sum*int64(n)/int64(sampled)

	case reflect.Map:
		n := v.Len()
		if n == 0 {
			return sizeHeader
		}
		sampled := 0
		var sum int64
		it := v.MapRange()
		for it.Next() && sampled < sizeSampleLimit {
			sum += sizeOfValue(it.Key(), depth+1, seen)
			sum += sizeOfValue(it.Value(), depth+1, seen)
			sampled++
		}
		return sizeHeader + sum*int64(n)/int64(sampled)

	case reflect.Struct:
		total := int64(0)
		for i := 0; i < v.NumField(); i++ {
			total += sizeFieldCost + sizeOfValue(v.Field(i), depth+1, seen)
		}
		return total

	case reflect.Pointer:
		if v.IsNil() {
			return sizeScalar
		}
		// Identity dedup tolerates cycles and shared sub-objects.
		p := v.Pointer()
		if _, ok := seen[p]; ok {
			return sizeScalar
		}
		seen[p] = struct{}{}
		return sizeScalar + sizeOfValue(v.Elem(), depth+1, seen)

	case reflect.Interface:
		if v.IsNil() {
			return sizeScalar
		}
		return sizeScalar + sizeOfValue(v.Elem(), depth+1, seen)

	default:
		// Chan, Func, UnsafePointer and friends: not meaningfully sizable.
		return sizeFallback
	}
}
