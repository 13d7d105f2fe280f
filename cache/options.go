package cache

import (
	"log/slog"
	"time"

	"github.com/Keksclan/rawrcache/breaker"
	"github.com/Keksclan/rawrcache/policy"
	"github.com/Keksclan/rawrcache/retry"
	"github.com/Keksclan/rawrcache/store"
	"github.com/Keksclan/rawrcache/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

// config holds the cache configuration assembled via functional options.
type config struct {
	freshTTL          time.Duration
	staleTTL          time.Duration
	lockTTL           time.Duration
	waitTimeout       time.Duration
	waitInterval      time.Duration
	scanBatch         int64
	connectTimeout    time.Duration
	revalidateTimeout time.Duration
	jitter            float64
	defaultLabel      string

	breaker breaker.Config
	retry   retry.Config

	revalidateRPS   float64
	revalidateBurst int

	localMaxEntries int64
	localMaxTTL     time.Duration

	logger     *slog.Logger
	tracing    *tracing.TracingConfig
	registerer prometheus.Registerer
	policies   *policy.Table
}

func defaultConfig() config {
	return config{
		freshTTL:          DefaultFreshTTL,
		staleTTL:          DefaultStaleTTL,
		lockTTL:           DefaultLockTTL,
		waitTimeout:       DefaultWaitTimeout,
		waitInterval:      DefaultWaitInterval,
		scanBatch:         DefaultScanBatch,
		connectTimeout:    store.DefaultConnectTimeout,
		revalidateTimeout: DefaultRevalidateTimeout,
		defaultLabel:      DefaultLabel,
		breaker:           breaker.DefaultConfig(),
		logger:            slog.Default(),
		registerer:        prometheus.DefaultRegisterer,
	}
}

// Option configures a Cache.
type Option func(*config)

// WithFreshTTL sets the default fresh window for keys without a category
// policy.
func WithFreshTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.freshTTL = d
		}
	}
}

// WithStaleTTL sets the default stale window for keys without a category
// policy.
func WithStaleTTL(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.staleTTL = d
		}
	}
}

// WithLockTTL sets how long a refresh lock lives if its holder never
// releases it.
func WithLockTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.lockTTL = d
		}
	}
}

// WithLockWait sets how long a caller that lost the lock race polls for the
// winner's write, and how often.
func WithLockWait(timeout, interval time.Duration) Option {
	return func(c *config) {
		if timeout > 0 {
			c.waitTimeout = timeout
		}
		if interval > 0 {
			c.waitInterval = interval
		}
	}
}

// WithScanBatch sets the COUNT hint for each SCAN round during invalidation.
func WithScanBatch(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.scanBatch = n
		}
	}
}

// WithConnectTimeout bounds how long a call waits for the store to connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithRevalidateTimeout bounds each background revalidation.
func WithRevalidateTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.revalidateTimeout = d
		}
	}
}

// WithTTLJitter sets the default jitter ratio applied to fresh TTLs on
// write. Category policies override it.
func WithTTLJitter(ratio float64) Option {
	return func(c *config) {
		c.jitter = ratio
	}
}

// WithDefaultLabel sets the log and metric label for keys outside every
// category.
func WithDefaultLabel(label string) Option {
	return func(c *config) {
		if label != "" {
			c.defaultLabel = label
		}
	}
}

// WithBreaker configures the circuit breaker guarding store probes.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) {
		c.breaker = cfg
	}
}

// WithFetchRetry retries failed fetches according to cfg before the
// failure is handled.
func WithFetchRetry(cfg retry.Config) Option {
	return func(c *config) {
		c.retry = cfg
	}
}

// WithRevalidationLimit caps how many background revalidations may start
// per second in this process. Triggers beyond the limit are skipped.
func WithRevalidationLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.revalidateRPS = rps
		c.revalidateBurst = burst
	}
}

// WithLocalCache enables an in-process layer holding up to maxEntries fresh
// envelopes for at most maxTTL each. Fresh hits are then served without a
// store round trip. Writes by other processes become visible once the
// local copy ages out, so keep maxTTL short.
func WithLocalCache(maxEntries int64, maxTTL time.Duration) Option {
	return func(c *config) {
		c.localMaxEntries = maxEntries
		c.localMaxTTL = maxTTL
	}
}

// WithLogger sets the logger. A logger stored in the call context via the
// logging package takes precedence.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracing enables OpenTelemetry spans with the given configuration.
func WithTracing(cfg *tracing.TracingConfig) Option {
	return func(c *config) {
		c.tracing = cfg
	}
}

// WithRegisterer sets where Prometheus collectors are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) {
		if reg != nil {
			c.registerer = reg
		}
	}
}

// WithPolicies installs the category table used for labels, per-category
// TTLs, and invalidation targets.
func WithPolicies(t *policy.Table) Option {
	return func(c *config) {
		c.policies = t
	}
}

// CallOption adjusts a single read-through or refresh call.
type CallOption func(*callOptions)

type callOptions struct {
	freshTTL          time.Duration
	staleTTL          time.Duration
	ttlSet            bool
	label             string
	revalidateOnFresh bool
	syncRefresh       bool
}

// WithTTL overrides the fresh and stale windows for this call.
func WithTTL(fresh, stale time.Duration) CallOption {
	return func(o *callOptions) {
		o.freshTTL = fresh
		o.staleTTL = stale
		o.ttlSet = true
	}
}

// WithLabel overrides the log and metric label for this call.
func WithLabel(label string) CallOption {
	return func(o *callOptions) {
		o.label = label
	}
}

// WithRevalidateOnFresh makes GetOrRefresh schedule a background
// revalidation on fresh hits too.
func WithRevalidateOnFresh() CallOption {
	return func(o *callOptions) {
		o.revalidateOnFresh = true
	}
}

// WithSyncRefresh makes GetOrRefresh refresh stale entries in the calling
// goroutine, falling back to the stale value if the fetch fails, instead
// of returning the stale value and refreshing in the background.
func WithSyncRefresh() CallOption {
	return func(o *callOptions) {
		o.syncRefresh = true
	}
}
