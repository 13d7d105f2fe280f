// Package ratelimit provides the token bucket that throttles background
// revalidation, backed by golang.org/x/time/rate.
package ratelimit

import "golang.org/x/time/rate"

// Limiter decides whether another background refresh may start. A nil
// *Limiter allows everything.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps refreshes per second with
// the given burst. A non-positive rps means no limit.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), max(burst, 1))}
}

// Allow reports whether a single refresh may start now.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.Allow()
}
