package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Keksclan/rawrcache/envelope"
)

// Inspection statuses beyond the envelope's own.
const (
	InspectExpired = "expired"
	InspectInvalid = "invalid"
)

// Inspection describes the stored record for a key without interpreting
// its value.
type Inspection struct {
	Key string
	// Status is "fresh", "stale", "miss", InspectExpired (the store still
	// holds a record past its stale window), or InspectInvalid.
	Status     string
	Value      json.RawMessage
	UpdatedAt  time.Time
	ExpiresAt  time.Time
	StaleUntil time.Time
	// Locked reports whether a refresh lock is currently held for the key.
	Locked bool
}

// Inspect reads the record for key as-is. Unlike [Read] it never deletes,
// bypasses the in-process layer, and reports an unreachable store as
// [ErrStoreUnavailable].
func (c *Cache) Inspect(ctx context.Context, key string) (Inspection, error) {
	in := Inspection{Key: key, Status: envelope.Miss.String()}

	s, ok := c.guard.Resolve(ctx)
	if !ok {
		return in, ErrStoreUnavailable
	}

	_, locked, err := s.Get(ctx, LockKey(key))
	if err != nil {
		c.storeFailed(ctx, err)
		return in, fmt.Errorf("cache: inspect lock %q: %w", key, err)
	}
	in.Locked = locked

	raw, found, err := s.Get(ctx, key)
	if err != nil {
		c.storeFailed(ctx, err)
		return in, fmt.Errorf("cache: inspect %q: %w", key, err)
	}
	if !found {
		return in, nil
	}

	env, err := envelope.Decode[json.RawMessage](raw)
	if err != nil {
		if errors.Is(err, envelope.ErrInvalidEnvelope) {
			in.Status = InspectInvalid
			in.Value = json.RawMessage(raw)
			if !json.Valid(raw) {
				in.Value, _ = json.Marshal(string(raw))
			}
			return in, nil
		}
		return in, err
	}

	in.Value = env.Value
	in.UpdatedAt = env.UpdatedAt
	in.ExpiresAt = env.ExpiresAt
	in.StaleUntil = env.StaleUntil

	if st := envelope.Classify(env, c.now()); st != envelope.Miss {
		in.Status = st.String()
	} else {
		in.Status = InspectExpired
	}
	return in, nil
}
