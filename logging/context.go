// Package logging carries a *slog.Logger through a context so that cache
// operations log with the caller's attributes.
package logging

import (
	"context"
	"log/slog"

	"github.com/Keksclan/rawrcache/contextx"
)

type loggerContextKey struct{}

// FromContext returns the logger stored in ctx, or fallback when there is
// none. A nil fallback means slog.Default(). A request ID found in ctx is
// attached as "request_id".
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger)
	if !ok || logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		logger = logger.With(slog.String("request_id", id))
	}
	return logger
}

// AddToContext stores logger in ctx.
func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// AddMetaToContext stores a logger enriched with args in ctx.
func AddMetaToContext(ctx context.Context, args ...slog.Attr) context.Context {
	logger, _ := ctx.Value(loggerContextKey{}).(*slog.Logger)
	if logger == nil {
		logger = slog.Default()
	}

	anySlice := make([]any, len(args))
	for i, arg := range args {
		anySlice[i] = arg
	}

	return AddToContext(ctx, logger.With(anySlice...))
}
