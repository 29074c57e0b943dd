package peer

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// NodeExchangeServer is the server API for the node exchange service.
//
// Payloads are CBOR-encoded Request/Response values carried in protobuf
// well-known wrapper types, so no protoc/codegen toolchain is needed.
type NodeExchangeServer interface {
	Fetch(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedNodeExchangeServer can be embedded to have forward compatible implementations.
type UnimplementedNodeExchangeServer struct{}

func (UnimplementedNodeExchangeServer) Fetch(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Fetch not implemented")
}
func (UnimplementedNodeExchangeServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Has not implemented")
}

// RegisterNodeExchangeServer registers the service on a gRPC server.
func RegisterNodeExchangeServer(s grpc.ServiceRegistrar, srv NodeExchangeServer) {
	s.RegisterService(&NodeExchange_ServiceDesc, srv)
}

// NodeExchangeClient is the client API for the node exchange service.
type NodeExchangeClient interface {
	Fetch(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

const (
	serviceName = "xdao.dagstore.peer.v1.NodeExchange"
	methodFetch = "/" + serviceName + "/Fetch"
	methodHas   = "/" + serviceName + "/Has"
)

type nodeExchangeClient struct{ cc grpc.ClientConnInterface }

func NewNodeExchangeClient(cc grpc.ClientConnInterface) NodeExchangeClient {
	return &nodeExchangeClient{cc: cc}
}

func (c *nodeExchangeClient) Fetch(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodFetch, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeExchangeClient) Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodHas, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _NodeExchange_Fetch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeExchangeServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFetch}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeExchangeServer).Fetch(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _NodeExchange_Has_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeExchangeServer).Has(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHas}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeExchangeServer).Has(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// NodeExchange_ServiceDesc is the grpc.ServiceDesc for the node exchange service.
var NodeExchange_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*NodeExchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fetch", Handler: _NodeExchange_Fetch_Handler},
		{MethodName: "Has", Handler: _NodeExchange_Has_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "peer.proto",
}
