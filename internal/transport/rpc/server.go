package rpc

// #region imports
import (
	"context"
	"errors"
	"log"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region service-desc

// ModelServer is the server side of brain.ModelService.
type ModelServer interface {
	Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ModelServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "brain/model.proto",
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModelServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: invokeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ModelServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion service-desc

// #region server

// Server exposes any transport.Model as a ModelService.
type Server struct {
	model transport.Model
}

// Register adds a ModelService backed by model to s.
func Register(s *grpc.Server, model transport.Model) {
	s.RegisterService(&serviceDesc, &Server{model: model})
}

// Invoke decodes the request, calls the model and encodes the reply. Failed
// calls report their partial token usage in a trailer.
func (s *Server) Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := decodeRequest(in)
	resp, err := s.model.Invoke(ctx, req)
	if err != nil {
		if terr := grpc.SetTrailer(ctx, metadata.Pairs(tokensTrailer, strconv.Itoa(resp.TokensUsed))); terr != nil {
			log.Printf("[RPC] set trailer: %v", terr)
		}
		return nil, toStatus(err)
	}
	out, err := encodeResponse(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	var te *transport.Error
	if errors.As(err, &te) {
		switch {
		case te.Timeout:
			return status.Error(codes.DeadlineExceeded, err.Error())
		case te.Cancelled:
			return status.Error(codes.Canceled, err.Error())
		}
	}
	return status.Error(codes.Unavailable, err.Error())
}

// #endregion server
