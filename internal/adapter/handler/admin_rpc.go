package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/mini-oms/internal/core/domain"
)

// The admin service exchanges google.protobuf.Struct messages over the default proto codec. The
// typed request and response structs below are their JSON mapping.
const (
	adminServiceName        = "minioms.v1.AdminService"
	changeOrderStatusMethod = "/" + adminServiceName + "/ChangeOrderStatus"
	getAnalyticsMethod      = "/" + adminServiceName + "/GetAnalytics"
)

type ChangeOrderStatusRequest struct {
	OrderID string             `json:"orderId"`
	Status  domain.OrderStatus `json:"status"`
}

type ChangeOrderStatusResponse struct {
	Order *domain.Order `json:"order"`
}

type GetAnalyticsRequest struct{}

type GetAnalyticsResponse struct {
	Data *domain.Analytics `json:"data"`
}

type AdminServer interface {
	ChangeOrderStatus(context.Context, *ChangeOrderStatusRequest) (*ChangeOrderStatusResponse, error)
	GetAnalytics(context.Context, *GetAnalyticsRequest) (*GetAnalyticsResponse, error)
}

func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ChangeOrderStatus", Handler: changeOrderStatusHandler},
		{MethodName: "GetAnalytics", Handler: getAnalyticsHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func changeOrderStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ChangeOrderStatusRequest)
	if err := decodeStruct(dec, in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).ChangeOrderStatus(ctx, req.(*ChangeOrderStatusRequest))
	}
	return serveUnary(ctx, srv, in, changeOrderStatusMethod, interceptor, call)
}

func getAnalyticsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAnalyticsRequest)
	if err := decodeStruct(dec, in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).GetAnalytics(ctx, req.(*GetAnalyticsRequest))
	}
	return serveUnary(ctx, srv, in, getAnalyticsMethod, interceptor, call)
}

// serveUnary runs call through the interceptor chain and encodes its result as a Struct.
func serveUnary(ctx context.Context, srv, in any, method string, interceptor grpc.UnaryServerInterceptor, call grpc.UnaryHandler) (any, error) {
	var (
		out any
		err error
	)
	if interceptor == nil {
		out, err = call(ctx, in)
	} else {
		out, err = interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, call)
	}
	if err != nil {
		return nil, err
	}

	res, err := toStruct(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return res, nil
}

func decodeStruct(dec func(any) error, v any) error {
	msg := new(structpb.Struct)
	if err := dec(msg); err != nil {
		return err
	}
	if err := fromStruct(msg, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := new(structpb.Struct)
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("convert to struct: %w", err)
	}
	return msg, nil
}

func fromStruct(msg *structpb.Struct, v any) error {
	data, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

type AdminClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) ChangeOrderStatus(ctx context.Context, in *ChangeOrderStatusRequest, opts ...grpc.CallOption) (*ChangeOrderStatusResponse, error) {
	out := new(ChangeOrderStatusResponse)
	if err := c.invoke(ctx, changeOrderStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) GetAnalytics(ctx context.Context, in *GetAnalyticsRequest, opts ...grpc.CallOption) (*GetAnalyticsResponse, error) {
	out := new(GetAnalyticsResponse)
	if err := c.invoke(ctx, getAnalyticsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	res := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, res, opts...); err != nil {
		return err
	}
	return fromStruct(res, out)
}
