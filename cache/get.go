package cache

import (
	"context"

	"github.com/Keksclan/rawrcache/envelope"
)

// GetOrRefresh is the read-through entry point. It returns the value for
// key together with the status the read found:
//
//   - Fresh: the cached value. With [WithRevalidateOnFresh] a background
//     revalidation is scheduled as well.
//   - Stale: the cached value, with a background revalidation scheduled.
//     With [WithSyncRefresh] the refresh runs in the calling goroutine
//     instead and its result is returned, or the stale value if it fails.
//   - Miss: the result of [RefreshWithLock]. When the read found the store
//     unreachable the fetch goes straight to the upstream and nothing is
//     written.
//
// Only a failed fetch on a miss returns an error.
func GetOrRefresh[V any](ctx context.Context, c *Cache, key string, fetch Fetcher[V], opts ...CallOption) (V, envelope.Status, error) {
	o := buildCallOptions(opts)
	p := c.resolve(key, o)

	res, storeDown := lookup[V](ctx, c, key, p.label, true)
	switch res.Status {
	case envelope.Fresh:
		if o.revalidateOnFresh {
			triggerRevalidation(ctx, c, key, fetch, p)
		}
		return res.Value, envelope.Fresh, nil
	case envelope.Stale:
		if o.syncRefresh {
			v, err := refresh(ctx, c, key, fetch, p, fallback[V]{value: res.Value, ok: true}, false)
			return v, envelope.Stale, err
		}
		triggerRevalidation(ctx, c, key, fetch, p)
		return res.Value, envelope.Stale, nil
	default:
		v, err := refresh(ctx, c, key, fetch, p, fallback[V]{}, storeDown)
		return v, envelope.Miss, err
	}
}
