package interceptors

import (
	"context"

	"github.com/Keksclan/rawrcache/contextx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the metadata key carrying the request ID in both
// directions.
const RequestIDHeader = "x-request-id"

// RequestIDUnary returns a unary server interceptor that ensures a request ID
// is present in the context. An ID sent by the client is reused; otherwise
// a new one is generated. The ID is echoed back as a response header.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDHeader); len(vals) > 0 && vals[0] != "" {
				ctx = contextx.WithRequestID(ctx, vals[0])
			}
		}
		ctx = contextx.EnsureRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, contextx.RequestIDFromContext(ctx)))
		return handler(ctx, req)
	}
}
