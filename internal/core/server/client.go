package server

import (
	"context"

	"github.com/solatis/mutguard/internal/core/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the guard service over an established connection.
type Client struct {
	conn   grpc.ClientConnInterface
	apiKey string
}

// NewClient wraps conn. apiKey is attached to every call when non-empty.
func NewClient(conn grpc.ClientConnInterface, apiKey string) *Client {
	return &Client{conn: conn, apiKey: apiKey}
}

// Call invokes method with req and returns the response struct.
func (c *Client) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, auth.MetadataKey, c.apiKey)
	}
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CallMap builds the request from m.
func (c *Client) CallMap(ctx context.Context, method string, m map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, method, req)
}
