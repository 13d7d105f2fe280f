// Package retry provides a generic retry helper with exponential backoff and
// jitter. The cache wraps fetchers with it when fetch retries are enabled.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff returns the delay for the given attempt (0-indexed), capped at
// cfg.MaxDelay when set.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxDelay > 0 {
		delay = min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter > 0 {
		delay += delay * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(delay, 0))
}
