package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mutguard.v1.GuardService"

// Method names of the guard service.
const (
	MethodCreate     = "Create"
	MethodGet        = "Get"
	MethodSet        = "Set"
	MethodSetPath    = "SetPath"
	MethodDeletePath = "DeletePath"
	MethodInvoke     = "Invoke"
	MethodFreeze     = "Freeze"
	MethodReset      = "Reset"
	MethodSnapshot   = "Snapshot"
	MethodHistory    = "History"
	MethodList       = "List"
)

// GuardServiceServer is the server API for the guard service. Every method
// takes and returns a structpb.Struct, so no generated code is needed.
type GuardServiceServer interface {
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Set(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPath(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeletePath(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Freeze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterGuardService registers srv on s.
func RegisterGuardService(s grpc.ServiceRegistrar, srv GuardServiceServer) {
	s.RegisterService(&guardServiceDesc, srv)
}

var guardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GuardServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreate, GuardServiceServer.Create),
		unary(MethodGet, GuardServiceServer.Get),
		unary(MethodSet, GuardServiceServer.Set),
		unary(MethodSetPath, GuardServiceServer.SetPath),
		unary(MethodDeletePath, GuardServiceServer.DeletePath),
		unary(MethodInvoke, GuardServiceServer.Invoke),
		unary(MethodFreeze, GuardServiceServer.Freeze),
		unary(MethodReset, GuardServiceServer.Reset),
		unary(MethodSnapshot, GuardServiceServer.Snapshot),
		unary(MethodHistory, GuardServiceServer.History),
		unary(MethodList, GuardServiceServer.List),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mutguard/v1/guard.proto",
}

type structHandler func(GuardServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary builds the MethodDesc protoc-gen-go-grpc would emit for a
// Struct -> Struct method.
func unary(name string, call structHandler) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GuardServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GuardServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
