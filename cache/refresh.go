package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/Keksclan/rawrcache/envelope"
	"github.com/Keksclan/rawrcache/retry"
	"github.com/Keksclan/rawrcache/store"
	"github.com/Keksclan/rawrcache/tracing"
	"github.com/google/uuid"
)

// fallback is an optional value served when the fetch fails.
type fallback[V any] struct {
	value V
	ok    bool
}

// RefreshWithLock fetches the value for key and writes it, making sure that
// across all processes sharing the store at most one caller per key fetches
// at a time:
//
//   - If the store is unavailable, fetch directly with no protection.
//   - If this caller wins the key's lock, fetch, write, and release the lock.
//   - Otherwise poll the cache until the winner's write shows up (fresh or
//     stale) and return it. If nothing shows up within the wait timeout,
//     fetch and write without holding the lock; a second fetch in flight is
//     accepted over blocking indefinitely.
//
// A fetch error is returned unchanged; see [RefreshWithStaleFallback] to
// serve a value instead.
func RefreshWithLock[V any](ctx context.Context, c *Cache, key string, fetch Fetcher[V], opts ...CallOption) (V, error) {
	return refresh(ctx, c, key, fetch, c.resolve(key, buildCallOptions(opts)), fallback[V]{}, false)
}

// RefreshWithStaleFallback is [RefreshWithLock], except that when the fetch
// fails it returns stale, typically the value the caller already
// holds, instead of the error. stale is returned, never written.
func RefreshWithStaleFallback[V any](ctx context.Context, c *Cache, key string, fetch Fetcher[V], stale V, opts ...CallOption) (V, error) {
	fb := fallback[V]{value: stale, ok: true}
	return refresh(ctx, c, key, fetch, c.resolve(key, buildCallOptions(opts)), fb, false)
}

// refresh runs the lock state machine. storeDown is set by callers that
// have just failed to reach the store, so the connect timeout is not paid
// a second time.
func refresh[V any](ctx context.Context, c *Cache, key string, fetch Fetcher[V], p params, fb fallback[V], storeDown bool) (v V, err error) {
	ctx, span := c.tracing.Start(ctx, "refresh", p.label, key)
	defer func() { tracing.End(span, err) }()

	if storeDown {
		c.emit(ctx, p.label, key, evNoLock)
		return fetchAndWrite(ctx, c, key, fetch, p, fb, nil)
	}
	s, ok := c.guard.Resolve(ctx)
	if !ok {
		c.emit(ctx, p.label, key, evNoLock)
		return fetchAndWrite(ctx, c, key, fetch, p, fb, nil)
	}

	lockKey := LockKey(key)
	token := uuid.NewString()
	acquired, err := s.SetNX(ctx, lockKey, []byte(token), c.cfg.lockTTL)
	if err != nil {
		c.reportStoreError(ctx, p.label, key, "lock", err)
		c.emit(ctx, p.label, key, evNoLock)
		return fetchAndWrite(ctx, c, key, fetch, p, fb, s)
	}

	if acquired {
		c.emit(ctx, p.label, key, evLockAcquired, slog.String("token", token))
		defer c.releaseLock(ctx, s, p.label, key, token)
		return fetchAndWrite(ctx, c, key, fetch, p, fb, s)
	}

	c.emit(ctx, p.label, key, evLockWait)
	res, err := waitForValue[V](ctx, c, key, p.label)
	if err != nil {
		var zero V
		return zero, err
	}
	if res.Hit() {
		c.emit(ctx, p.label, key, evLockWaitHit, slog.String("status", res.Status.String()))
		return res.Value, nil
	}

	c.emit(ctx, p.label, key, evLockTimeout, slog.Duration("waited", c.cfg.waitTimeout))
	return fetchAndWrite(ctx, c, key, fetch, p, fb, s)
}

// waitForValue polls the cache until a fresh or stale value appears, the
// wait timeout passes (miss, nil error), or ctx is done.
func waitForValue[V any](ctx context.Context, c *Cache, key, label string) (envelope.Result[V], error) {
	var miss envelope.Result[V]

	deadline := time.NewTimer(c.cfg.waitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.waitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return miss, ctx.Err()
		case <-deadline.C:
			return miss, nil
		case <-ticker.C:
			if res := read[V](ctx, c, key, label, false); res.Hit() {
				return res, nil
			}
		}
	}
}

// fetchAndWrite fetches and writes the result through s. A nil s means the
// store is known to be down and the write is skipped.
func fetchAndWrite[V any](ctx context.Context, c *Cache, key string, fetch Fetcher[V], p params, fb fallback[V], s store.Store) (V, error) {
	start := time.Now()
	v, err := runFetch(ctx, c, p.label, key, fetch)
	c.metrics.observeFetch(p.label, time.Since(start), err)

	if err != nil {
		if fb.ok {
			c.emit(ctx, p.label, key, evServeStale, slog.String("error", err.Error()))
			return fb.value, nil
		}
		c.emit(ctx, p.label, key, evFetchFailed, slog.String("error", err.Error()))
		var zero V
		return zero, err
	}

	fresh := p.freshTTL
	if p.jitter > 0 {
		fresh = envelope.ApplyTTLJitter(fresh, p.jitter)
	}
	if s == nil {
		c.emit(ctx, p.label, key, evWriteSkipped)
		return v, nil
	}
	writeTo(ctx, c, s, key, p.label, v, fresh, p.staleTTL)
	return v, nil
}

// runFetch calls fetch inside a span, with retries when configured.
func runFetch[V any](ctx context.Context, c *Cache, label, key string, fetch Fetcher[V]) (v V, err error) {
	ctx, span := c.tracing.Start(ctx, "fetch", label, key)
	defer func() { tracing.End(span, err) }()

	if c.cfg.retry.Enabled() {
		return retry.Do[V](ctx, c.cfg.retry, fetch)
	}
	return fetch(ctx)
}

// releaseLock deletes the lock only if it still holds token. Failures are
// logged with the token and never returned; the lock's own expiry is the
// backstop.
func (c *Cache) releaseLock(ctx context.Context, s store.Store, label, key, token string) {
	ctx = context.WithoutCancel(ctx)
	released, err := s.CompareAndDelete(ctx, LockKey(key), []byte(token))
	if err != nil {
		c.guard.ReportFailure(err)
		c.emit(ctx, label, key, evLockReleaseFailed,
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		return
	}
	if !released {
		c.emit(ctx, label, key, evLockLost, slog.String("token", token))
	}
}
