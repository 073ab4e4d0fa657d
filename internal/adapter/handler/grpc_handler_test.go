package handler

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/checkout-engine/internal/adapter/storage"
	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/core/service"
)

func newGRPCClient(t *testing.T) (*CheckoutClient, *storage.MemoryAdapter) {
	t.Helper()

	store := storage.NewMemoryAdapter()
	store.PutProduct(domain.Product{ID: 10, Name: "mug", UnitPrice: decimal.RequireFromString("4.50"), Quantity: 5})

	orders := service.NewOrderService(service.Deps{
		Ledger:    store,
		Baskets:   store,
		Orders:    store,
		Addresses: store,
		Customers: store,
		Tx:        store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, 100)
	t.Cleanup(orders.Close)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCheckoutServer(srv, NewGRPCHandler(orders))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewCheckoutClient(conn), store
}

func guestRequest(qty int) *CreateOrderRequest {
	return &CreateOrderRequest{
		Email:   "guest@example.com",
		Address: AddressDTO{Street: "1 Main St", Zip: "10001", Country: "US", Province: "NY"},
		Items:   []LineDTO{{ProductID: 10, Quantity: qty}},
	}
}

func TestGRPC_OrderLifecycle(t *testing.T) {
	client, store := newGRPCClient(t)
	ctx := context.Background()

	order, err := client.CreateOrder(ctx, guestRequest(2))
	require.NoError(t, err)
	assert.Equal(t, "PENDING", order.Status)
	assert.True(t, decimal.RequireFromString("9.00").Equal(order.Total))

	got, err := client.GetOrder(ctx, &GetOrderRequest{ID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	updated, err := client.UpdateStatus(ctx, &UpdateStatusRequest{ID: order.ID, Status: "processing"})
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", updated.Status)

	cancelled, err := client.CancelOrder(ctx, &GetOrderRequest{ID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", cancelled.Status)

	p, _ := store.Get(ctx, 10)
	assert.Equal(t, 5, p.Quantity)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	client, _ := newGRPCClient(t)
	ctx := context.Background()

	_, err := client.GetOrder(ctx, &GetOrderRequest{ID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.CreateOrder(ctx, guestRequest(50))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	bad := guestRequest(1)
	bad.Email = "not-an-email"
	_, err = client.CreateOrder(ctx, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	order, err := client.CreateOrder(ctx, guestRequest(1))
	require.NoError(t, err)
	_, err = client.UpdateStatus(ctx, &UpdateStatusRequest{ID: order.ID, Status: "DELIVERED"})
	require.NoError(t, err)
	_, err = client.CancelOrder(ctx, &GetOrderRequest{ID: order.ID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.UpdateStatus(ctx, &UpdateStatusRequest{ID: order.ID, Status: "LOST"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCCode(t *testing.T) {
	assert.Equal(t, codes.AlreadyExists, grpcCode("duplicate_request"))
	assert.Equal(t, codes.FailedPrecondition, grpcCode("empty_basket"))
	assert.Equal(t, codes.InvalidArgument, grpcCode("invalid_quantity"))
	assert.Equal(t, codes.Internal, grpcCode("internal"))
}
