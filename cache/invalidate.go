package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Keksclan/rawrcache/store"
	"github.com/Keksclan/rawrcache/tracing"
)

// Invalidate deletes every key of the category named target and returns
// how many keys the store removed. At most 10,000 keys are collected per
// call; call again to clear a larger category. The in-process layer is
// cleared entirely.
//
// Unlike the read path, Invalidate reports an unreachable store as
// [ErrStoreUnavailable]. An unregistered target yields [ErrUnknownTarget].
func (c *Cache) Invalidate(ctx context.Context, target string) (n int, err error) {
	e, ok := c.policies.Lookup(target)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}

	ctx, span := c.tracing.Start(ctx, "invalidate", e.Name, e.Prefix)
	defer func() { tracing.End(span, err) }()

	s, ok := c.guard.Resolve(ctx)
	if !ok {
		return 0, ErrStoreUnavailable
	}

	keys, err := scanKeys(ctx, s, escapeGlob(e.Prefix)+"*", c.cfg.scanBatch, maxInvalidateKeys)
	if err != nil {
		c.storeFailed(ctx, err)
		return 0, fmt.Errorf("cache: scan %q: %w", e.Prefix, err)
	}

	c.local.clear()

	var deleted int64
	for batch := range slices.Chunk(keys, deleteBatchSize) {
		d, err := s.Delete(ctx, batch...)
		deleted += d
		if err != nil {
			c.storeFailed(ctx, err)
			return int(deleted), fmt.Errorf("cache: delete %q: %w", e.Prefix, err)
		}
	}

	c.emit(ctx, e.Name, e.Prefix, evInvalidated,
		slog.Int("scanned", len(keys)),
		slog.Int64("deleted", deleted),
	)
	return int(deleted), nil
}

// scanKeys collects up to limit distinct keys matching match. SCAN may
// return a key more than once.
func scanKeys(ctx context.Context, s store.Store, match string, count int64, limit int) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.Scan(ctx, cursor, match, count)
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
			if len(keys) >= limit {
				return keys, nil
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

// escapeGlob quotes the glob metacharacters of a SCAN MATCH pattern.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
