package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Keksclan/rawrcache/cache"
	"github.com/Keksclan/rawrcache/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewHandler returns a Handler operating on c. logger may be nil.
func NewHandler(c *cache.Cache, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &handler{cache: c, logger: logger}
}

type handler struct {
	cache  *cache.Cache
	logger *slog.Logger
}

func (h *handler) Invalidate(ctx context.Context, req *InvalidateRequest) (*InvalidateResponse, error) {
	if req.Target == "" {
		return nil, status.Error(codes.InvalidArgument, "target is required")
	}
	n, err := h.cache.Invalidate(ctx, req.Target)
	if err != nil {
		return nil, h.statusError(ctx, "invalidate failed", err, slog.String("target", req.Target))
	}
	logging.FromContext(ctx, h.logger).InfoContext(ctx, "invalidated category",
		slog.String("target", req.Target),
		slog.Int("deleted", n),
	)
	return &InvalidateResponse{Target: req.Target, Deleted: n}, nil
}

func (h *handler) Inspect(ctx context.Context, req *InspectRequest) (*InspectResponse, error) {
	if req.Key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}
	in, err := h.cache.Inspect(ctx, req.Key)
	if err != nil {
		return nil, h.statusError(ctx, "inspect failed", err, slog.String("key", req.Key))
	}
	return &InspectResponse{
		Key:          in.Key,
		Status:       in.Status,
		Value:        in.Value,
		UpdatedAtMs:  unixMilli(in.UpdatedAt),
		ExpiresAtMs:  unixMilli(in.ExpiresAt),
		StaleUntilMs: unixMilli(in.StaleUntil),
		Locked:       in.Locked,
	}, nil
}

func (h *handler) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	return &PingResponse{
		Message:        req.Message,
		ServerTimeUnix: time.Now().Unix(),
		StoreReady:     h.cache.StoreReady(ctx),
	}, nil
}

// statusError maps cache errors onto gRPC codes and logs the ones that are
// not the caller's fault.
func (h *handler) statusError(ctx context.Context, msg string, err error, attrs ...slog.Attr) error {
	switch {
	case errors.Is(err, cache.ErrUnknownTarget):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, cache.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	attrs = append(attrs, slog.String("error", err.Error()))
	logging.FromContext(ctx, h.logger).LogAttrs(ctx, slog.LevelError, msg, attrs...)
	return status.Error(codes.Internal, msg)
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
