package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "bnb.Dispatcher"

// DispatcherServer is implemented by the dispatcher process.
type DispatcherServer interface {
	Join(context.Context, *JoinRequest) (*JoinResponse, error)
	Initialize(context.Context, *InitializeRequest) (*InitializeResponse, error)
	Update(context.Context, *UpdateRequest) (*UpdateResponse, error)
	Finalize(context.Context, *FinalizeRequest) (*FinalizeResponse, error)
	Log(context.Context, *LogRequest) (*LogResponse, error)
}

// RegisterDispatcherServer attaches srv to s.
func RegisterDispatcherServer(s grpc.ServiceRegistrar, srv DispatcherServer) {
	s.RegisterService(&DispatcherServiceDesc, srv)
}

// DispatcherServiceDesc describes the bnb.Dispatcher service.
var DispatcherServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DispatcherServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: unaryHandler("Join", DispatcherServer.Join)},
		{MethodName: "Initialize", Handler: unaryHandler("Initialize", DispatcherServer.Initialize)},
		{MethodName: "Update", Handler: unaryHandler("Update", DispatcherServer.Update)},
		{MethodName: "Finalize", Handler: unaryHandler("Finalize", DispatcherServer.Finalize)},
		{MethodName: "Log", Handler: unaryHandler("Log", DispatcherServer.Log)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bnb/dispatcher",
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func unaryHandler[Req, Resp any](name string, call func(DispatcherServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DispatcherServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DispatcherServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// DispatcherClient calls the dispatcher service.
type DispatcherClient interface {
	Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error)
	Initialize(ctx context.Context, in *InitializeRequest, opts ...grpc.CallOption) (*InitializeResponse, error)
	Update(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*UpdateResponse, error)
	Finalize(ctx context.Context, in *FinalizeRequest, opts ...grpc.CallOption) (*FinalizeResponse, error)
	Log(ctx context.Context, in *LogRequest, opts ...grpc.CallOption) (*LogResponse, error)
}

type dispatcherClient struct {
	cc grpc.ClientConnInterface
}

// NewDispatcherClient returns a client using the msgpack codec.
func NewDispatcherClient(cc grpc.ClientConnInterface) DispatcherClient {
	return &dispatcherClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dispatcherClient) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error) {
	return invoke[JoinResponse](ctx, c.cc, "Join", in, opts)
}

func (c *dispatcherClient) Initialize(ctx context.Context, in *InitializeRequest, opts ...grpc.CallOption) (*InitializeResponse, error) {
	return invoke[InitializeResponse](ctx, c.cc, "Initialize", in, opts)
}

func (c *dispatcherClient) Update(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*UpdateResponse, error) {
	return invoke[UpdateResponse](ctx, c.cc, "Update", in, opts)
}

func (c *dispatcherClient) Finalize(ctx context.Context, in *FinalizeRequest, opts ...grpc.CallOption) (*FinalizeResponse, error) {
	return invoke[FinalizeResponse](ctx, c.cc, "Finalize", in, opts)
}

func (c *dispatcherClient) Log(ctx context.Context, in *LogRequest, opts ...grpc.CallOption) (*LogResponse, error) {
	return invoke[LogResponse](ctx, c.cc, "Log", in, opts)
}
