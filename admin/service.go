// Package admin provides the rawrcache.Admin gRPC service used to operate a
// running cache: invalidate a category, inspect a single key, and check
// that the process and its store are alive. Like a hand-written gRPC
// service it uses [grpc.ServiceDesc] registration, so no protobuf code
// generation is required.
//
// The request and response types are plain Go structs. The package
// registers a codec wrapper that JSON-encodes them while delegating every
// other message to the standard proto codec. Importing this package (or
// calling [Register]) activates the codec.
package admin

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "rawrcache.Admin"

// Full method names.
const (
	InvalidateMethod = "/" + ServiceName + "/Invalidate"
	InspectMethod    = "/" + ServiceName + "/Inspect"
	PingMethod       = "/" + ServiceName + "/Ping"
)

// Handler is the interface an Admin service implementation must satisfy.
type Handler interface {
	Invalidate(ctx context.Context, req *InvalidateRequest) (*InvalidateResponse, error)
	Inspect(ctx context.Context, req *InspectRequest) (*InspectResponse, error)
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
}

// ServiceDesc is the grpc.ServiceDesc for the rawrcache.Admin service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invalidate",
			Handler: unary(InvalidateMethod, func(h Handler) func(context.Context, *InvalidateRequest) (*InvalidateResponse, error) {
				return h.Invalidate
			}),
		},
		{
			MethodName: "Inspect",
			Handler: unary(InspectMethod, func(h Handler) func(context.Context, *InspectRequest) (*InspectResponse, error) {
				return h.Inspect
			}),
		},
		{
			MethodName: "Ping",
			Handler: unary(PingMethod, func(h Handler) func(context.Context, *PingRequest) (*PingResponse, error) {
				return h.Ping
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rawrcache/admin.proto",
}

// unary builds a grpc method handler that decodes Req, runs it through
// the server's interceptor chain, and calls the method picked from the
// registered Handler.
func unary[Req, Resp any](fullMethod string, pick func(Handler) func(context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		call := pick(srv.(Handler))
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, r any) (any, error) {
			return call(ctx, r.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// Register registers an Admin service implementation on the given gRPC
// server.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}
