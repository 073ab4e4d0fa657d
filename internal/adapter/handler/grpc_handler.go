package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/core/service"
)

const (
	checkoutServiceName = "checkout.v1.Checkout"
	jsonCodecName       = "json"
)

// jsonCodec lets the service run without generated protobuf code. Clients
// select it with grpc.CallContentSubtype(jsonCodecName).
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type GetOrderRequest struct {
	ID string `json:"id"`
}

type UpdateStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CheckoutServer is the gRPC surface of the engine.
type CheckoutServer interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderDTO, error)
	GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*OrderDTO, error)
	CancelOrder(ctx context.Context, req *GetOrderRequest) (*OrderDTO, error)
}

func unaryMethod[Req any](name string, call func(CheckoutServer, context.Context, *Req) (*OrderDTO, error)) grpc.MethodDesc {
	fullMethod := "/" + checkoutServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CheckoutServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CheckoutServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var CheckoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateOrder", CheckoutServer.CreateOrder),
		unaryMethod("GetOrder", CheckoutServer.GetOrder),
		unaryMethod("UpdateStatus", CheckoutServer.UpdateStatus),
		unaryMethod("CancelOrder", CheckoutServer.CancelOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout/v1/checkout.proto",
}

func RegisterCheckoutServer(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&CheckoutServiceDesc, srv)
}

type GRPCHandler struct {
	orderService *service.OrderService
}

func NewGRPCHandler(orderService *service.OrderService) *GRPCHandler {
	return &GRPCHandler{orderService: orderService}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderDTO, error) {
	order, err := h.orderService.CreateOrder(ctx, req.checkout(), req.IdempotencyKey)
	return reply(order, err)
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderDTO, error) {
	order, err := h.orderService.GetOrder(ctx, req.ID)
	return reply(order, err)
}

func (h *GRPCHandler) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*OrderDTO, error) {
	to, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, grpcError(err)
	}
	order, err := h.orderService.UpdateStatus(ctx, req.ID, to)
	return reply(order, err)
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *GetOrderRequest) (*OrderDTO, error) {
	order, err := h.orderService.CancelOrder(ctx, req.ID)
	return reply(order, err)
}

func reply(order domain.Order, err error) (*OrderDTO, error) {
	if err != nil {
		return nil, grpcError(err)
	}
	out := orderDTO(order)
	return &out, nil
}

func grpcCode(code string) codes.Code {
	switch code {
	case "not_found":
		return codes.NotFound
	case "invalid_quantity", "validation_error":
		return codes.InvalidArgument
	case "insufficient_stock":
		return codes.ResourceExhausted
	case "empty_basket", "invalid_transition":
		return codes.FailedPrecondition
	case "duplicate_request":
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

func grpcError(err error) error {
	c := grpcCode(domain.Code(err))
	if c == codes.Internal {
		return status.Error(c, "internal error")
	}
	return status.Error(c, err.Error())
}

// CheckoutClient calls CheckoutServiceDesc over the JSON codec.
type CheckoutClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckoutClient(cc grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{cc: cc}
}

func (c *CheckoutClient) invoke(ctx context.Context, method string, in any) (*OrderDTO, error) {
	out := new(OrderDTO)
	err := c.cc.Invoke(ctx, "/"+checkoutServiceName+"/"+method, in, out, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CheckoutClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderDTO, error) {
	return c.invoke(ctx, "CreateOrder", req)
}

func (c *CheckoutClient) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderDTO, error) {
	return c.invoke(ctx, "GetOrder", req)
}

func (c *CheckoutClient) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*OrderDTO, error) {
	return c.invoke(ctx, "UpdateStatus", req)
}

func (c *CheckoutClient) CancelOrder(ctx context.Context, req *GetOrderRequest) (*OrderDTO, error) {
	return c.invoke(ctx, "CancelOrder", req)
}
