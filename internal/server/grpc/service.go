package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "datakeeper.v1.DataKeeper"

// Messages are plain structpb.Struct values carrying the same JSON shapes as
// the HTTP API.
type DataKeeperServer interface {
	Upsert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Read(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StoreFiles(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFiles(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DispatchJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(DataKeeperServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, m unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return m(srv.(DataKeeperServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return m(srv.(DataKeeperServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// FullMethod returns the wire name of method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DataKeeperServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Upsert", DataKeeperServer.Upsert),
		method("Read", DataKeeperServer.Read),
		method("StoreFiles", DataKeeperServer.StoreFiles),
		method("ListFiles", DataKeeperServer.ListFiles),
		method("DispatchJob", DataKeeperServer.DispatchJob),
		method("Ping", DataKeeperServer.Ping),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterDataKeeperServer(s grpc.ServiceRegistrar, srv DataKeeperServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the service over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with in and returns the response message.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping returns the server status string.
func (c *Client) Ping(ctx context.Context) (string, error) {
	out, err := c.Call(ctx, "Ping", nil)
	if err != nil {
		return "", err
	}
	return out.GetFields()["status"].GetStringValue(), nil
}
