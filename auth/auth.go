// Package auth provides the authentication function type used by the
// admin server's authentication middleware, plus a static bearer-token
// implementation.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/Keksclan/rawrcache/logging"
	"google.golang.org/grpc/metadata"
)

// AuthFunc is a user-supplied callback that authenticates a gRPC request.
// It receives the request context, the full method name, and the incoming
// metadata.  On success it returns a (possibly enriched) context; on failure
// it returns an error.
type AuthFunc func(ctx context.Context, fullMethod string, md metadata.MD) (context.Context, error)

// ErrBadToken is returned by [StaticToken] when the request carries no
// token or the wrong one.
var ErrBadToken = errors.New("auth: missing or invalid token")

// StaticToken returns an AuthFunc accepting requests whose "authorization"
// metadata is "Bearer <token>". The operator name, if sent as
// "x-operator", is attached to the request's logger. An empty token
// rejects every request.
func StaticToken(token string) AuthFunc {
	want := []byte(token)
	return func(ctx context.Context, _ string, md metadata.MD) (context.Context, error) {
		if len(want) == 0 {
			return ctx, ErrBadToken
		}
		vals := md.Get("authorization")
		if len(vals) == 0 {
			return ctx, ErrBadToken
		}
		got, ok := strings.CutPrefix(vals[0], "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return ctx, ErrBadToken
		}
		if op := md.Get("x-operator"); len(op) > 0 && op[0] != "" {
			ctx = logging.AddMetaToContext(ctx, slog.String("operator", op[0]))
		}
		return ctx, nil
	}
}

// BearerToken returns the outgoing metadata pairs that [StaticToken]
// accepts.
func BearerToken(token string) metadata.MD {
	return metadata.Pairs("authorization", "Bearer "+token)
}
