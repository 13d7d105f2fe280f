package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Keksclan/rawrcache"
	"github.com/Keksclan/rawrcache/auth"
	"github.com/Keksclan/rawrcache/cache"
	"github.com/Keksclan/rawrcache/config"
	"github.com/Keksclan/rawrcache/store"
	"github.com/Keksclan/rawrcache/tracing"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var traceStdout bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin gRPC server and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, cfg, traceStdout)
		},
	}
	cmd.Flags().BoolVar(&traceStdout, "trace-stdout", false, "export spans to stdout")
	return cmd
}

func (a *app) serve(ctx context.Context, cfg *config.Config, traceStdout bool) error {
	logger, err := cfg.Logger(a.stderr)
	if err != nil {
		return err
	}

	var tc *tracing.TracingConfig
	if traceStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(a.stdout), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		tc = &tracing.TracingConfig{TracerProvider: tp}
	}

	cacheOpts, err := cfg.CacheOptions()
	if err != nil {
		return err
	}
	cacheOpts = append(cacheOpts, cache.WithLogger(logger), cache.WithTracing(tc))

	rs := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rs.Close()

	c, err := cache.New(rs, cacheOpts...)
	if err != nil {
		return err
	}

	opts := append(rawrcache.DefaultOptions(),
		rawrcache.WithLogger(logger),
		rawrcache.WithTracing(tc),
	)
	if cfg.Admin.Token != "" {
		opts = append(opts, rawrcache.WithAuth(auth.StaticToken(cfg.Admin.Token)))
	}
	if cfg.Admin.RateLimit > 0 {
		opts = append(opts, rawrcache.WithRateLimit(cfg.Admin.RateLimit, cfg.Admin.RateBurst))
	}
	srv := rawrcache.NewServer(c, opts...)

	lis, err := net.Listen("tcp", cfg.Admin.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Admin.Addr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("admin server listening", slog.String("addr", lis.Addr().String()))
		errCh <- srv.Serve(lis)
	}()

	var metrics *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.MetricsHandler())
		metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics endpoint listening", slog.String("addr", cfg.Metrics.Addr))
			if err := metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("server failed", slog.String("error", runErr.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metrics != nil {
		_ = metrics.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
