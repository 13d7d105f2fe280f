package cache

import (
	"context"
	"log/slog"

	"github.com/Keksclan/rawrcache/logging"
)

// event names a state transition. Every event is logged and counted.
type event string

const (
	evHit                 event = "hit"
	evMiss                event = "miss"
	evStale               event = "stale"
	evExpired             event = "expired"
	evInvalidPayload      event = "invalid-payload"
	evStoreUnavailable    event = "store-unavailable"
	evStoreError          event = "store-error"
	evWrite               event = "write"
	evWriteFailed         event = "write-failed"
	evWriteSkipped        event = "write-skipped"
	evNoLock              event = "no-lock"
	evLockAcquired        event = "lock-acquired"
	evLockWait            event = "lock-wait"
	evLockWaitHit         event = "lock-wait-hit"
	evLockTimeout         event = "lock-timeout"
	evLockLost            event = "lock-lost"
	evLockReleaseFailed   event = "lock-release-failed"
	evFetchFailed         event = "fetch-failed"
	evServeStale          event = "serve-stale-on-error"
	evRevalidateScheduled event = "revalidate-scheduled"
	evRevalidateThrottled event = "revalidate-throttled"
	evRevalidateOK        event = "revalidate-ok"
	evRevalidateFail      event = "revalidate-fail"
	evInvalidated         event = "invalidated"
)

func (e event) level() slog.Level {
	switch e {
	case evInvalidPayload, evStoreError, evWriteFailed, evLockTimeout, evLockLost,
		evLockReleaseFailed, evServeStale, evRevalidateFail:
		return slog.LevelWarn
	case evFetchFailed:
		return slog.LevelError
	case evInvalidated, evRevalidateThrottled:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func (e event) message() string {
	switch e {
	case evServeStale:
		return "serving stale due to error"
	case evInvalidPayload:
		return "cache payload invalid, deleted"
	case evExpired:
		return "cache entry expired, deleted"
	case evLockTimeout:
		return "lock wait timed out, fetching without lock"
	case evLockReleaseFailed:
		return "failed to release refresh lock"
	case evLockLost:
		return "refresh lock expired before release"
	case evWriteFailed:
		return "cache write failed"
	default:
		return "cache " + string(e)
	}
}

// emit logs ev for key under label and counts it.
func (c *Cache) emit(ctx context.Context, label, key string, ev event, attrs ...slog.Attr) {
	c.metrics.events.WithLabelValues(label, string(ev)).Inc()

	logger := logging.FromContext(ctx, c.logger)
	lvl := ev.level()
	if !logger.Enabled(ctx, lvl) {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+3)
	all = append(all,
		slog.String("cache", label),
		slog.String("key", key),
		slog.String("event", string(ev)),
	)
	all = append(all, attrs...)
	logger.LogAttrs(ctx, lvl, ev.message(), all...)
}
