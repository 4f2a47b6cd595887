package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// CoreServiceName is the fully-qualified gRPC service name.
const CoreServiceName = "printshop.core.v1.CoreService"

// CoreServiceServer is the server API for printshop.core.v1.CoreService.
// Requests and responses are google.protobuf.Struct documents whose fields
// mirror the HTTP JSON API.
type CoreServiceServer interface {
	CreateItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PermittedActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reserve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Consume(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Release(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AdjustStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordCredit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyToOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCustomerBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderPaymentStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type coreMethod func(CoreServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call coreMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CoreServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + CoreServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CoreServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// CoreServiceDesc is the grpc.ServiceDesc for printshop.core.v1.CoreService.
var CoreServiceDesc = grpc.ServiceDesc{
	ServiceName: CoreServiceName,
	HandlerType: (*CoreServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateItem", CoreServiceServer.CreateItem),
		unaryMethod("Transition", CoreServiceServer.Transition),
		unaryMethod("PermittedActions", CoreServiceServer.PermittedActions),
		unaryMethod("Reserve", CoreServiceServer.Reserve),
		unaryMethod("Consume", CoreServiceServer.Consume),
		unaryMethod("Release", CoreServiceServer.Release),
		unaryMethod("AdjustStock", CoreServiceServer.AdjustStock),
		unaryMethod("RecordCredit", CoreServiceServer.RecordCredit),
		unaryMethod("ApplyToOrder", CoreServiceServer.ApplyToOrder),
		unaryMethod("AddPayment", CoreServiceServer.AddPayment),
		unaryMethod("GetCustomerBalance", CoreServiceServer.GetCustomerBalance),
		unaryMethod("GetOrderPaymentStatus", CoreServiceServer.GetOrderPaymentStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "printshop/core/v1/core.proto",
}

// RegisterCoreServiceServer registers srv on s.
func RegisterCoreServiceServer(s grpc.ServiceRegistrar, srv CoreServiceServer) {
	s.RegisterService(&CoreServiceDesc, srv)
}

// CoreServiceClient calls printshop.core.v1.CoreService.
type CoreServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCoreServiceClient creates a client over cc.
func NewCoreServiceClient(cc grpc.ClientConnInterface) *CoreServiceClient {
	return &CoreServiceClient{cc: cc}
}

// Call invokes method with a Struct request.
func (c *CoreServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+CoreServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
