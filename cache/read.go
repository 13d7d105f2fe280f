package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/Keksclan/rawrcache/envelope"
	"github.com/Keksclan/rawrcache/store"
)

// Read looks up key and classifies it. It never fails: an unreachable
// store, a missing key, an undecodable record, and a record past its stale
// window all read as a miss. Undecodable and fully expired records are
// deleted.
func Read[V any](ctx context.Context, c *Cache, key string, opts ...CallOption) envelope.Result[V] {
	p := c.resolve(key, buildCallOptions(opts))
	return read[V](ctx, c, key, p.label, true)
}

// read implements Read. Lock-wait polling passes logMiss=false so that each
// empty poll is not reported as a miss.
func read[V any](ctx context.Context, c *Cache, key, label string, logMiss bool) envelope.Result[V] {
	res, _ := lookup[V](ctx, c, key, label, logMiss)
	return res
}

// lookup is read that also reports whether the miss came from the store
// being unreachable.
func lookup[V any](ctx context.Context, c *Cache, key, label string, logMiss bool) (envelope.Result[V], bool) {
	var miss envelope.Result[V]
	now := c.now()

	if raw, ok := c.local.get(key); ok {
		env, err := envelope.Decode[V](raw)
		if err == nil && envelope.Classify(env, now) == envelope.Fresh {
			c.emit(ctx, label, key, evHit, slog.Bool("local", true))
			return envelope.Result[V]{Status: envelope.Fresh, Value: env.Value}, false
		}
		c.local.del(key)
	}

	s, ok := c.guard.Resolve(ctx)
	if !ok {
		if logMiss {
			c.emit(ctx, label, key, evStoreUnavailable)
		}
		return miss, true
	}

	raw, found, err := s.Get(ctx, key)
	if err != nil {
		c.reportStoreError(ctx, label, key, "get", err)
		return miss, false
	}
	if !found {
		if logMiss {
			c.emit(ctx, label, key, evMiss)
		}
		return miss, false
	}

	env, err := envelope.Decode[V](raw)
	if err != nil {
		c.emit(ctx, label, key, evInvalidPayload, slog.String("error", err.Error()))
		c.remove(ctx, s, label, key)
		return miss, false
	}

	switch envelope.Classify(env, now) {
	case envelope.Fresh:
		c.local.set(key, raw, env.ExpiresAt.Sub(now))
		c.emit(ctx, label, key, evHit)
		return envelope.Result[V]{Status: envelope.Fresh, Value: env.Value}, false
	case envelope.Stale:
		c.emit(ctx, label, key, evStale, slog.Time("expires_at", env.ExpiresAt))
		return envelope.Result[V]{Status: envelope.Stale, Value: env.Value}, false
	default:
		c.emit(ctx, label, key, evExpired, slog.Time("stale_until", env.StaleUntil))
		c.remove(ctx, s, label, key)
		return miss, false
	}
}

// Write stores value under key, fresh for freshTTL and then stale for
// staleTTL. The record expires from the store on its own once both windows
// have passed. Write is best-effort: when the store is unavailable or the
// write fails it logs and returns.
func Write[V any](ctx context.Context, c *Cache, key string, value V, freshTTL, staleTTL time.Duration) {
	p := c.resolve(key, callOptions{})
	write(ctx, c, key, p.label, value, freshTTL, staleTTL)
}

func write[V any](ctx context.Context, c *Cache, key, label string, value V, freshTTL, staleTTL time.Duration) {
	// A caller giving up right after the fetch must not lose the write.
	ctx = context.WithoutCancel(ctx)

	s, ok := c.guard.Resolve(ctx)
	if !ok {
		c.emit(ctx, label, key, evWriteSkipped)
		return
	}
	writeTo(ctx, c, s, key, label, value, freshTTL, staleTTL)
}

func writeTo[V any](ctx context.Context, c *Cache, s store.Store, key, label string, value V, freshTTL, staleTTL time.Duration) {
	ctx = context.WithoutCancel(ctx)

	env := envelope.New(value, c.now(), freshTTL, staleTTL)
	raw, err := envelope.Encode(env)
	if err != nil {
		c.emit(ctx, label, key, evWriteFailed, slog.String("error", err.Error()))
		return
	}

	if err := s.Set(ctx, key, raw, envelope.NormalizeTTL(freshTTL+staleTTL)); err != nil {
		c.guard.ReportFailure(err)
		c.emit(ctx, label, key, evWriteFailed, slog.String("error", err.Error()))
		return
	}
	c.local.set(key, raw, freshTTL)
	c.emit(ctx, label, key, evWrite,
		slog.Duration("fresh_ttl", freshTTL),
		slog.Duration("stale_ttl", staleTTL),
	)
}

// remove deletes key as part of self-healing. Failures are logged only.
func (c *Cache) remove(ctx context.Context, s store.Store, label, key string) {
	c.local.del(key)
	ctx = context.WithoutCancel(ctx)
	if _, err := s.Delete(ctx, key); err != nil {
		c.reportStoreError(ctx, label, key, "delete", err)
	}
}
