package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Сервис описан вручную: запросы и ответы — google.protobuf.Struct,
// поэтому отдельный .proto и сгенерированные сообщения не нужны.
const (
	SaleLifecycleServiceName = "orcamentos.v1.SaleLifecycle"

	SaleLifecycle_ConfirmSale_FullMethodName          = "/orcamentos.v1.SaleLifecycle/ConfirmSale"
	SaleLifecycle_CancelSale_FullMethodName           = "/orcamentos.v1.SaleLifecycle/CancelSale"
	SaleLifecycle_CancelInProcessQuote_FullMethodName = "/orcamentos.v1.SaleLifecycle/CancelInProcessQuote"
	SaleLifecycle_GetQuote_FullMethodName             = "/orcamentos.v1.SaleLifecycle/GetQuote"
)

// SaleLifecycleServer — серверная часть orcamentos.v1.SaleLifecycle.
type SaleLifecycleServer interface {
	ConfirmSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelInProcessQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedSaleLifecycleServer отвечает Unimplemented на все методы.
type UnimplementedSaleLifecycleServer struct{}

func (UnimplementedSaleLifecycleServer) ConfirmSale(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ConfirmSale not implemented")
}

func (UnimplementedSaleLifecycleServer) CancelSale(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelSale not implemented")
}

func (UnimplementedSaleLifecycleServer) CancelInProcessQuote(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelInProcessQuote not implemented")
}

func (UnimplementedSaleLifecycleServer) GetQuote(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetQuote not implemented")
}

// RegisterSaleLifecycleServer регистрирует реализацию на gRPC-сервере.
func RegisterSaleLifecycleServer(s grpc.ServiceRegistrar, srv SaleLifecycleServer) {
	s.RegisterService(&SaleLifecycle_ServiceDesc, srv)
}

type structHandler func(SaleLifecycleServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryStructHandler(fullMethod string, call structHandler) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SaleLifecycleServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SaleLifecycleServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SaleLifecycle_ServiceDesc — дескриптор сервиса для grpc.Server.
var SaleLifecycle_ServiceDesc = grpc.ServiceDesc{
	ServiceName: SaleLifecycleServiceName,
	HandlerType: (*SaleLifecycleServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ConfirmSale",
			Handler:    unaryStructHandler(SaleLifecycle_ConfirmSale_FullMethodName, SaleLifecycleServer.ConfirmSale),
		},
		{
			MethodName: "CancelSale",
			Handler:    unaryStructHandler(SaleLifecycle_CancelSale_FullMethodName, SaleLifecycleServer.CancelSale),
		},
		{
			MethodName: "CancelInProcessQuote",
			Handler:    unaryStructHandler(SaleLifecycle_CancelInProcessQuote_FullMethodName, SaleLifecycleServer.CancelInProcessQuote),
		},
		{
			MethodName: "GetQuote",
			Handler:    unaryStructHandler(SaleLifecycle_GetQuote_FullMethodName, SaleLifecycleServer.GetQuote),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orcamentos/v1/sale_lifecycle.proto",
}

// SaleLifecycleClient — клиент orcamentos.v1.SaleLifecycle.
type SaleLifecycleClient interface {
	ConfirmSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CancelSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CancelInProcessQuote(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetQuote(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type saleLifecycleClient struct {
	cc grpc.ClientConnInterface
}

// NewSaleLifecycleClient создаёт клиент поверх соединения.
func NewSaleLifecycleClient(cc grpc.ClientConnInterface) SaleLifecycleClient {
	return &saleLifecycleClient{cc: cc}
}

func (c *saleLifecycleClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *saleLifecycleClient) ConfirmSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SaleLifecycle_ConfirmSale_FullMethodName, in, opts)
}

func (c *saleLifecycleClient) CancelSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SaleLifecycle_CancelSale_FullMethodName, in, opts)
}

func (c *saleLifecycleClient) CancelInProcessQuote(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SaleLifecycle_CancelInProcessQuote_FullMethodName, in, opts)
}

func (c *saleLifecycleClient) GetQuote(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SaleLifecycle_GetQuote_FullMethodName, in, opts)
}
