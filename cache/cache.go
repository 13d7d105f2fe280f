// Package cache implements a stampede-safe read-through cache over a shared
// key-value store.
//
// Entries are stored as envelopes (see package envelope) with a fresh
// window and a stale window. [Read] classifies an entry as fresh, stale, or
// missing; [RefreshWithLock] makes sure that, across every process sharing
// the store, at most one caller per key runs the expensive fetch while the
// others wait for its write; [TriggerRevalidation] refreshes in the
// background so a reader holding a stale value can return immediately.
// [GetOrRefresh] combines the three.
//
// The store is never a source of errors for callers: when it is down the
// cache degrades to calling the fetcher directly and skipping writes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Keksclan/rawrcache/policy"
	"github.com/Keksclan/rawrcache/ratelimit"
	"github.com/Keksclan/rawrcache/store"
	"github.com/Keksclan/rawrcache/tracing"
)

var (
	// ErrUnknownTarget is returned by [Cache.Invalidate] for a target that
	// is not a registered category.
	ErrUnknownTarget = errors.New("cache: unknown invalidation target")
	// ErrStoreUnavailable is returned by the admin operations
	// ([Cache.Invalidate], [Cache.Inspect]) when the store cannot be
	// reached. Read, write, and refresh never return it.
	ErrStoreUnavailable = errors.New("cache: store unavailable")
)

// Fetcher loads the value for a key from the expensive upstream. The value
// must be JSON-serialisable.
type Fetcher[V any] func(ctx context.Context) (V, error)

// Cache holds the shared configuration and process-local state for cache
// operations. The typed operations are package-level generic functions
// taking a *Cache. A Cache is safe for concurrent use.
type Cache struct {
	guard    *store.Guard
	cfg      config
	logger   *slog.Logger
	tracing  *tracing.TracingConfig
	metrics  *metrics
	local    *local
	limiter  *ratelimit.Limiter
	policies *policy.Table
	nowFunc  func() time.Time

	// revalidating is the set of keys with a background revalidation in
	// flight in this process. It only avoids redundant work within one
	// process; other processes do not see it, and cross-process
	// de-duplication comes from the store lock alone.
	mu           sync.Mutex
	revalidating map[string]struct{}
	closed       bool
	inflight     sync.WaitGroup
}

// New creates a Cache over s.
func New(s store.Store, opts ...Option) (*Cache, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	m, err := newMetrics(cfg.registerer)
	if err != nil {
		return nil, fmt.Errorf("cache: register metrics: %w", err)
	}

	var l *local
	if cfg.localMaxEntries > 0 {
		l, err = newLocal(cfg.localMaxEntries, cfg.localMaxTTL)
		if err != nil {
			return nil, fmt.Errorf("cache: local layer: %w", err)
		}
	}

	return &Cache{
		guard: store.NewGuard(s,
			store.WithConnectTimeout(cfg.connectTimeout),
			store.WithBreaker(cfg.breaker),
			store.WithGuardLogger(cfg.logger),
		),
		cfg:          cfg,
		logger:       cfg.logger,
		tracing:      cfg.tracing,
		metrics:      m,
		local:        l,
		limiter:      ratelimit.NewLimiter(cfg.revalidateRPS, cfg.revalidateBurst),
		policies:     cfg.policies,
		nowFunc:      time.Now,
		revalidating: make(map[string]struct{}),
	}, nil
}

// Policies returns the category table, which may be nil.
func (c *Cache) Policies() *policy.Table {
	return c.policies
}

// Revalidating reports whether a background revalidation for key is in
// flight in this process.
func (c *Cache) Revalidating(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.revalidating[key]
	return ok
}

// Wait blocks until every background revalidation started so far has
// finished.
func (c *Cache) Wait() {
	c.inflight.Wait()
}

// Close stops accepting background revalidations and waits for the ones in
// flight, or until ctx is done.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.local.close()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LockKey returns the key of the refresh lock paired with key.
func LockKey(key string) string {
	return key + ":lock"
}

func (c *Cache) now() time.Time {
	return c.nowFunc()
}

// params is the resolved policy for one call.
type params struct {
	label    string
	freshTTL time.Duration
	staleTTL time.Duration
	jitter   float64
}

func buildCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// resolve combines call options, the key's category, and cache defaults,
// in that order of precedence.
func (c *Cache) resolve(key string, o callOptions) params {
	p := params{
		label:    c.cfg.defaultLabel,
		freshTTL: c.cfg.freshTTL,
		staleTTL: c.cfg.staleTTL,
		jitter:   c.cfg.jitter,
	}
	if e, ok := c.policies.Resolve(key); ok {
		p.label = e.Name
		if e.Policy.FreshTTL > 0 {
			p.freshTTL = e.Policy.FreshTTL
		}
		if e.Policy.StaleTTL > 0 {
			p.staleTTL = e.Policy.StaleTTL
		}
		if e.Policy.Jitter > 0 {
			p.jitter = e.Policy.Jitter
		}
	}
	if o.ttlSet {
		p.freshTTL = o.freshTTL
		p.staleTTL = o.staleTTL
	}
	if o.label != "" {
		p.label = o.label
	}
	return p
}

// reportStoreError records a failed store operation against the guard and
// logs it. Errors caused by ctx ending are the caller's, not the store's.
func (c *Cache) reportStoreError(ctx context.Context, label, key, op string, err error) {
	if !c.storeFailed(ctx, err) {
		return
	}
	c.emit(ctx, label, key, evStoreError, slog.String("op", op), slog.String("error", err.Error()))
}

// storeFailed reports err to the guard unless ctx is already done, and
// tells whether it did.
func (c *Cache) storeFailed(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	c.guard.ReportFailure(err)
	return true
}

// StoreReady reports whether the store can be reached, probing it if
// needed.
func (c *Cache) StoreReady(ctx context.Context) bool {
	_, ok := c.guard.Resolve(ctx)
	return ok
}
