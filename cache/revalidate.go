package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TriggerRevalidation refreshes key in the background through
// [RefreshWithLock] and returns at once. It reports whether a revalidation
// was started: it is not when one for key is already in flight in this
// process, when the revalidation rate limit is exhausted, or after Close.
//
// The background refresh runs on a context detached from ctx, bounded by
// the revalidate timeout, so it survives the caller returning.
func TriggerRevalidation[V any](ctx context.Context, c *Cache, key string, fetch Fetcher[V], opts ...CallOption) bool {
	p := c.resolve(key, buildCallOptions(opts))
	return triggerRevalidation(ctx, c, key, fetch, p)
}

func triggerRevalidation[V any](ctx context.Context, c *Cache, key string, fetch Fetcher[V], p params) bool {
	if !c.beginRevalidation(key) {
		return false
	}
	if !c.limiter.Allow() {
		c.endRevalidation(key)
		c.emit(ctx, p.label, key, evRevalidateThrottled)
		return false
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		defer c.endRevalidation(key)

		rctx, cancel := context.WithTimeout(bg, c.cfg.revalidateTimeout)
		defer cancel()

		start := time.Now()
		err := runRevalidation(rctx, c, key, fetch, p)
		if err != nil {
			c.emit(bg, p.label, key, evRevalidateFail,
				slog.String("error", err.Error()),
				slog.Duration("elapsed", time.Since(start)),
			)
			return
		}
		c.emit(bg, p.label, key, evRevalidateOK, slog.Duration("elapsed", time.Since(start)))
	}()

	c.emit(ctx, p.label, key, evRevalidateScheduled)
	return true
}

// runRevalidation turns a panicking fetcher into an error; nobody is
// waiting on the goroutine to recover it.
func runRevalidation[V any](ctx context.Context, c *Cache, key string, fetch Fetcher[V], p params) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: revalidation panic: %v", r)
		}
	}()
	_, err = refresh(ctx, c, key, fetch, p, fallback[V]{}, false)
	return err
}

// beginRevalidation claims key in the de-dup set. The claim is taken before
// the goroutine starts so that a second trigger racing the first sees it.
func (c *Cache) beginRevalidation(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if _, ok := c.revalidating[key]; ok {
		return false
	}
	c.revalidating[key] = struct{}{}
	c.inflight.Add(1)
	c.metrics.revalidating.Inc()
	return true
}

func (c *Cache) endRevalidation(key string) {
	c.mu.Lock()
	delete(c.revalidating, key)
	c.mu.Unlock()
	c.metrics.revalidating.Dec()
	c.inflight.Done()
}
