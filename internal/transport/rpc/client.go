package rpc

// #region imports
import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region client-struct

// Client is a transport.Model that forwards calls to a remote ModelService.
type Client struct {
	conn *grpc.ClientConn
}

// #endregion client-struct

// #region constructor

// NewClient connects to a ModelService at addr. Extra dial options are
// appended after insecure transport credentials.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #endregion constructor

// #region invoke

// Invoke sends req over the wire. Tokens consumed by a failed remote call are
// read back from the response trailer.
func (c *Client) Invoke(ctx context.Context, req transport.Request) (transport.Response, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return transport.Response{}, transport.NewError(req.Tier, fmt.Errorf("encode request: %w", err))
	}

	ctx, cancel := transport.WithTimeout(ctx, req)
	defer cancel()

	out := new(structpb.Struct)
	var trailer metadata.MD
	if err := c.conn.Invoke(ctx, invokeMethod, in, out, grpc.Trailer(&trailer)); err != nil {
		resp := transport.Response{TokensUsed: trailerTokens(trailer)}
		return resp, transport.NewError(req.Tier, classify(err))
	}
	return decodeResponse(out), nil
}

func trailerTokens(md metadata.MD) int {
	vals := md.Get(tokensTrailer)
	if len(vals) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(vals[0])
	return n
}

// classify maps gRPC status codes back onto context errors so callers can
// tell timeouts from other failures.
func classify(err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	case codes.Canceled:
		return fmt.Errorf("%w: %v", context.Canceled, err)
	}
	return fmt.Errorf("invoke rpc: %w", err)
}

// #endregion invoke
