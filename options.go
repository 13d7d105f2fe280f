package rawrcache

import (
	"log/slog"

	"github.com/Keksclan/rawrcache/auth"
	"github.com/Keksclan/rawrcache/interceptors"
	"github.com/Keksclan/rawrcache/ratelimit"
	"github.com/Keksclan/rawrcache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

// Middleware execution order. Lower values run first, regardless of the
// order options are passed in.
const (
	orderLogger    = 0
	orderRecovery  = 100
	orderRequestID = 200
	orderTracing   = 300
	orderAuth      = 400
	orderRateLimit = 500
	orderCustom    = 1000
)

// Option configures a Server.
type Option func(*config)

// WithUnaryInterceptor appends a unary server interceptor that runs after
// all built-in middleware.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) {
		c.middlewares.Add(orderCustom, "", i)
	}
}

// WithRecovery turns panics in handlers into codes.Internal instead of
// crashing the process.
func WithRecovery() Option {
	return func(c *config) {
		c.middlewares.Add(orderRecovery, "recovery", interceptors.RecoveryUnary(nil))
	}
}

// WithRequestID makes sure every request carries a request ID, reusing
// the client's x-request-id when present. Cache log records of the
// request include it.
func WithRequestID() Option {
	return func(c *config) {
		c.middlewares.Add(orderRequestID, "request-id", interceptors.RequestIDUnary())
	}
}

// WithTracing starts a server span per admin call. Cache spans opened while
// handling the call become its children.
func WithTracing(cfg *tracing.TracingConfig) Option {
	return func(c *config) {
		c.middlewares.Add(orderTracing, "tracing", tracing.UnaryServerInterceptor(cfg))
	}
}

// WithAuth authenticates every call with fn.
func WithAuth(fn auth.AuthFunc) Option {
	return func(c *config) {
		c.middlewares.Add(orderAuth, "auth", interceptors.AuthUnary(fn))
	}
}

// WithRateLimit caps admin calls at rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.middlewares.Add(orderRateLimit, "rate-limit", interceptors.RateLimitUnary(ratelimit.NewLimiter(rps, burst)))
	}
}

// WithLogger sets the logger handed to admin handlers and middleware.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithGatherer sets the registry served by [Server.MetricsHandler].
// Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *config) {
		if g != nil {
			c.gatherer = g
		}
	}
}
