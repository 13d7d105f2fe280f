package interceptors

import (
	"context"
	"log/slog"

	"github.com/Keksclan/rawrcache/logging"
	"google.golang.org/grpc"
)

// LoggerUnary returns a unary server interceptor that stores logger, tagged
// with the called method, in the request context. Handlers and the cache
// pick it up through the logging package.
func LoggerUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx = logging.AddToContext(ctx, logger.With(slog.String("method", info.FullMethod)))
		return handler(ctx, req)
	}
}
