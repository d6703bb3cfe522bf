package cache

import "time"

// Pressure configures how requested TTLs are scaled down as the cache
// fills. Thresholds are fractions of the byte budget in [0,1]; factors
// multiply the requested TTL. Zero values fall back to defaults in New.
type Pressure struct {
	// MediumThreshold and HighThreshold split occupancy into three bands.
	MediumThreshold float64
	HighThreshold   float64

	// MediumFactor and HighFactor scale the requested TTL inside the
	// corresponding band. Below MediumThreshold the TTL is unchanged.
	MediumFactor float64
	HighFactor   float64
}

func defaultPressure() Pressure {
	return Pressure{
		MediumThreshold: 0.70,
		HighThreshold:   0.90,
		MediumFactor:    0.5,
		HighFactor:      0.25,
	}
}

// adaptiveTTL scales base by the pressure band that used/capacity falls
// into. Shorter TTLs under pressure let the cache shed load on its own
// instead of relying purely on eviction.
//
// A non-positive base passes through unscaled: TTL validity is owned by
// the caller, not corrected here.
func adaptiveTTL(base time.Duration, used, capacity int64, p Pressure) time.Duration {
	if base <= 0 || capacity <= 0 {
		return base
	}
	pressure := float64(used) / float64(capacity)
	switch {
	case pressure >= p.HighThreshold:
		return time.Duration(float64(base) * p.HighFactor)
	case pressure >= p.MediumThreshold:
		return time.Duration(float64(base) * p.MediumFactor)
	default:
		return base
	}
}
