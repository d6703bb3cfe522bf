package cache

import "math"

// Stats is a point-in-time snapshot of cache activity. It is derived on
// demand and never persisted.
type Stats struct {
	Hits             int64
	Misses           int64
	ItemCount        int
	MemoryUsageBytes int64

	// HitRatePercent is 100*hits/(hits+misses) rounded to two decimals,
	// or 0 when no requests have been observed.
	HitRatePercent float64

	// PendingRequests counts factory computations currently in flight.
	PendingRequests int
}

// hitRatePercent computes the rounded hit rate for h hits and m misses.
func hitRatePercent(h, m int64) float64 {
	total := h + m
	if total == 0 {
		return 0
	}
	rate := 100 * float64(h) / float64(total)
	return math.Round(rate*100) / 100
}
