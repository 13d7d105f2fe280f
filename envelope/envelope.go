// Package envelope defines the record persisted for every cache entry: the
// cached value plus the timestamps that decide whether a read is fresh,
// stale, or a miss.
//
// Envelopes are stored as JSON with Unix-millisecond timestamps so that any
// process sharing the store can read them:
//
//	{"value": ..., "updatedAt": 1700000000000, "expiresAt": ..., "staleUntil": ...}
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEnvelope is returned by [Decode] when a stored record is not a
// structurally valid envelope.
var ErrInvalidEnvelope = errors.New("envelope: invalid record")

// Envelope wraps a cached value with its freshness window.
//
// UpdatedAt <= ExpiresAt <= StaleUntil always holds for envelopes built by
// [New] or returned by [Decode].
type Envelope[V any] struct {
	Value      V
	UpdatedAt  time.Time
	ExpiresAt  time.Time
	StaleUntil time.Time
}

// New builds an envelope written at now that is fresh for freshTTL and then
// servable as stale for a further staleTTL. Negative TTLs are treated as 0.
func New[V any](value V, now time.Time, freshTTL, staleTTL time.Duration) Envelope[V] {
	freshTTL = max(freshTTL, 0)
	staleTTL = max(staleTTL, 0)
	expires := now.Add(freshTTL)
	return Envelope[V]{
		Value:      value,
		UpdatedAt:  now,
		ExpiresAt:  expires,
		StaleUntil: expires.Add(staleTTL),
	}
}

// wire is the JSON shape. Pointer fields let Decode tell a missing field
// apart from a zero one.
type wire struct {
	Value      json.RawMessage `json:"value"`
	UpdatedAt  *int64          `json:"updatedAt"`
	ExpiresAt  *int64          `json:"expiresAt"`
	StaleUntil *int64          `json:"staleUntil"`
}

// Encode serialises env into its wire format.
func Encode[V any](env Envelope[V]) ([]byte, error) {
	val, err := json.Marshal(env.Value)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode value: %w", err)
	}
	updated := env.UpdatedAt.UnixMilli()
	expires := env.ExpiresAt.UnixMilli()
	stale := env.StaleUntil.UnixMilli()
	return json.Marshal(wire{
		Value:      val,
		UpdatedAt:  &updated,
		ExpiresAt:  &expires,
		StaleUntil: &stale,
	})
}

// Decode parses a stored record. Missing or non-numeric timestamps, a
// missing value, timestamps out of order, or a value that does not
// unmarshal into V all yield an error wrapping [ErrInvalidEnvelope].
func Decode[V any](raw []byte) (Envelope[V], error) {
	var zero Envelope[V]

	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if w.UpdatedAt == nil || w.ExpiresAt == nil || w.StaleUntil == nil {
		return zero, fmt.Errorf("%w: missing timestamp", ErrInvalidEnvelope)
	}
	if w.Value == nil {
		return zero, fmt.Errorf("%w: missing value", ErrInvalidEnvelope)
	}
	if *w.UpdatedAt > *w.ExpiresAt || *w.ExpiresAt > *w.StaleUntil {
		return zero, fmt.Errorf("%w: timestamps out of order", ErrInvalidEnvelope)
	}

	var v V
	if err := json.Unmarshal(w.Value, &v); err != nil {
		return zero, fmt.Errorf("%w: value: %v", ErrInvalidEnvelope, err)
	}

	return Envelope[V]{
		Value:      v,
		UpdatedAt:  time.UnixMilli(*w.UpdatedAt),
		ExpiresAt:  time.UnixMilli(*w.ExpiresAt),
		StaleUntil: time.UnixMilli(*w.StaleUntil),
	}, nil
}
