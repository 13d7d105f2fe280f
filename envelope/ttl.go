package envelope

import (
	"math"
	"math/rand/v2"
	"time"
)

// ApplyTTLJitter returns base scaled by a factor drawn uniformly from
// [1-ratio, 1+ratio]. ratio is clamped to [0, 1]. The result is rounded to
// whole seconds and is never below one second.
func ApplyTTLJitter(base time.Duration, ratio float64) time.Duration {
	ratio = min(max(ratio, 0), 1)
	d := float64(base)
	if ratio > 0 {
		d += d * ratio * (rand.Float64()*2 - 1)
	}
	secs := math.Round(d / float64(time.Second))
	return time.Duration(max(secs, 1)) * time.Second
}

// NormalizeTTL rounds d up to whole seconds with a floor of one second. It is
// used for store-level expiries.
func NormalizeTTL(d time.Duration) time.Duration {
	secs := math.Ceil(float64(d) / float64(time.Second))
	return time.Duration(max(secs, 1)) * time.Second
}
