// Package rawrcache is the operational front of a stampede-safe cache: a
// gRPC server exposing the admin service (see package admin) for a
// [cache.Cache], with composable middleware and a Prometheus endpoint.
//
// The cache itself lives in package cache and is used directly by
// application code; this package only serves it to operators.
//
//	c, _ := cache.New(store.NewRedis(addr, "", 0), cache.WithPolicies(table))
//	srv := rawrcache.NewServer(c, rawrcache.DefaultOptions()...)
//	go srv.Serve(lis)
package rawrcache

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Keksclan/rawrcache/admin"
	"github.com/Keksclan/rawrcache/cache"
	"github.com/Keksclan/rawrcache/interceptors"
	"github.com/Keksclan/rawrcache/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
)

// Server wraps a [grpc.Server] with the admin service registered for a
// cache. Middleware execution order is determined by fixed priority levels,
// not by the order options are passed.
//
// After construction the underlying gRPC server is available through
// [Server.GRPC] so that further services can be registered normally.
type Server struct {
	grpcServer *grpc.Server
	cache      *cache.Cache
	gatherer   prometheus.Gatherer
}

// NewServer creates a Server for c by applying the supplied functional
// [Option] values. With a nil c no admin service is registered.
//
// Example:
//
//	srv := rawrcache.NewServer(c,
//		rawrcache.WithRecovery(),
//		rawrcache.WithAuth(auth.StaticToken(token)),
//		rawrcache.WithRateLimit(5, 10),
//	)
func NewServer(c *cache.Cache, opts ...Option) *Server {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	cfg.middlewares.Add(orderLogger, "logger", interceptors.LoggerUnary(cfg.logger))

	unary := cfg.middlewares.Build()
	gs := grpc.NewServer(core.BuildServerOptions(unary, interceptors.ChainUnary)...)
	if c != nil {
		admin.Register(gs, admin.NewHandler(c, cfg.logger))
	}

	return &Server{
		grpcServer: gs,
		cache:      c,
		gatherer:   cfg.gatherer,
	}
}

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// Cache returns the cache served by s, which may be nil.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics,
// including the cache's event counters.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

// Serve accepts admin connections on lis until the server stops.
func (s *Server) Serve(lis net.Listener) error {
	err := s.grpcServer.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Shutdown stops accepting calls, waits for running calls until ctx is
// done, and then waits for the cache's background revalidations.
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-stopped
	}

	if s.cache == nil {
		return nil
	}
	return s.cache.Close(ctx)
}
