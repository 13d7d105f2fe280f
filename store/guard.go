package store

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Keksclan/rawrcache/breaker"
	"golang.org/x/sync/singleflight"
)

// DefaultConnectTimeout bounds how long [Guard.Resolve] waits for a
// connection probe.
const DefaultConnectTimeout = 3 * time.Second

// Guard resolves a usable handle to a [Store]. It never returns an error:
// when the store cannot be reached within the connect timeout it reports
// the store as unavailable so callers can degrade.
//
// A Guard starts not-ready. The first Resolve probes the store with Ping;
// concurrent Resolve calls join the same in-flight probe. After a
// successful probe the store is ready until [Guard.ReportFailure] is
// called. A circuit breaker stops probing for a while after repeated
// failures.
type Guard struct {
	store   Store
	timeout time.Duration
	breaker *breaker.Breaker
	logger  *slog.Logger

	ready  atomic.Bool
	probes singleflight.Group
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithConnectTimeout overrides [DefaultConnectTimeout].
func WithConnectTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBreaker sets the breaker configuration used for probes.
func WithBreaker(cfg breaker.Config) GuardOption {
	return func(g *Guard) {
		g.breaker = breaker.New(cfg)
	}
}

// WithGuardLogger sets the logger for probe failures.
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard wraps s.
func NewGuard(s Store, opts ...GuardOption) *Guard {
	g := &Guard{
		store:   s,
		timeout: DefaultConnectTimeout,
		breaker: breaker.New(breaker.DefaultConfig()),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Resolve returns the store and true when it is usable. It returns
// (nil, false) when the store is down, when the breaker is open, when the
// probe does not finish within the connect timeout, or when ctx is done
// first.
func (g *Guard) Resolve(ctx context.Context) (Store, bool) {
	if g.ready.Load() {
		return g.store, true
	}
	if !g.breaker.Allow() {
		return nil, false
	}

	ch := g.probes.DoChan("probe", g.probe)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false
		}
		return g.store, true
	case <-timer.C:
		g.logger.WarnContext(ctx, "store connect timed out", slog.Duration("timeout", g.timeout))
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// probe runs detached from any single caller so that a caller giving up
// does not fail the probe for the others waiting on it.
func (g *Guard) probe() (any, error) {
	if g.ready.Load() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.breaker.OnFailure()
		g.logger.Warn("store unavailable", slog.String("error", err.Error()))
		return nil, err
	}
	g.breaker.OnSuccess()
	g.ready.Store(true)
	return nil, nil
}

// ReportFailure tells the guard that a store operation failed. The next
// Resolve probes the store again. A canceled or expired caller context is
// not a store failure and is ignored.
func (g *Guard) ReportFailure(err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	g.ready.Store(false)
	g.breaker.OnFailure()
}

// Ready reports whether the last probe succeeded and no failure has been
// reported since.
func (g *Guard) Ready() bool {
	return g.ready.Load()
}

// Store returns the wrapped store regardless of its state.
func (g *Guard) Store() Store {
	return g.store
}
