package envelope

import "time"

// Status is the outcome of a cache read.
type Status int

const (
	Miss Status = iota
	Fresh
	Stale
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Result is what a read observes. Value is only meaningful when Status is
// Fresh or Stale.
type Result[V any] struct {
	Status Status
	Value  V
}

// Hit reports whether the result carries a servable value.
func (r Result[V]) Hit() bool {
	return r.Status == Fresh || r.Status == Stale
}

// Classify places now relative to env's windows: Fresh before ExpiresAt,
// Stale from ExpiresAt until StaleUntil, Miss afterwards.
func Classify[V any](env Envelope[V], now time.Time) Status {
	switch {
	case now.Before(env.ExpiresAt):
		return Fresh
	case now.Before(env.StaleUntil):
		return Stale
	default:
		return Miss
	}
}
