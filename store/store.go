// Package store abstracts the shared key-value store behind the cache and
// provides a Redis implementation plus the connectivity guard that decides
// whether the store is usable right now.
package store

import (
	"context"
	"time"
)

// Store is the set of primitives the cache needs from a shared key-value
// store. Every method touches a single key except Delete and Scan.
type Store interface {
	// Get returns the value stored under key. The boolean is false when the
	// key does not exist; that is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores val under key, replacing any existing value, and expires
	// it after ttl.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// SetNX atomically stores val under key with expiry ttl only if key does
	// not exist. It reports whether the value was stored.
	SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)

	// CompareAndDelete atomically deletes key only if its current value
	// equals expected. It reports whether the key was deleted.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Scan runs one round of cursor-based iteration over keys matching the
	// glob pattern match. A returned cursor of 0 means iteration is done.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
