package admin

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls a remote Admin service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Invalidate clears the category named target.
func (c *Client) Invalidate(ctx context.Context, target string, opts ...grpc.CallOption) (*InvalidateResponse, error) {
	resp := new(InvalidateResponse)
	if err := c.cc.Invoke(ctx, InvalidateMethod, &InvalidateRequest{Target: target}, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

// Inspect describes the stored record for key.
func (c *Client) Inspect(ctx context.Context, key string, opts ...grpc.CallOption) (*InspectResponse, error) {
	resp := new(InspectResponse)
	if err := c.cc.Invoke(ctx, InspectMethod, &InspectRequest{Key: key}, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

// Ping checks that the server and its store are alive.
func (c *Client) Ping(ctx context.Context, message string, opts ...grpc.CallOption) (*PingResponse, error) {
	resp := new(PingResponse)
	if err := c.cc.Invoke(ctx, PingMethod, &PingRequest{Message: message}, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}
