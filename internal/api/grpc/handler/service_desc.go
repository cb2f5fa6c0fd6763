package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service names registered on the gRPC server.
const (
	AuthServiceName     = "authkeeper.v1.Auth"
	SessionsServiceName = "authkeeper.v1.Sessions"
	SettingsServiceName = "authkeeper.v1.Settings"
	EmailsServiceName   = "authkeeper.v1.Emails"
	InternalServiceName = "authkeeper.v1.Internal"
)

// method binds a handler method to a unary MethodDesc that decodes a
// structpb.Struct and honours the server interceptor chain.
func method[H any](service, name string, call func(h H, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(H)
			if interceptor == nil {
				return call(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(h, ctx, req.(*structpb.Struct))
			})
		},
	}
}

func serviceDesc(name string, methods ...grpc.MethodDesc) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    "authkeeper/v1/authkeeper.proto",
	}
}

// FullMethod returns the gRPC path of a method.
func FullMethod(service, name string) string {
	return "/" + service + "/" + name
}
