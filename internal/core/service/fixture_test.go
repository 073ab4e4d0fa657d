package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/checkout-engine/internal/adapter/storage"
	"github.com/rl1809/checkout-engine/internal/core/domain"
)

const customerID int64 = 1

var shipTo = domain.Address{Street: "221B Baker St", Zip: "NW1", Country: "UK", Province: "London"}

type fixture struct {
	store   *storage.MemoryAdapter
	baskets *BasketService
	orders  *OrderService
	metrics *mockMetrics
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()

	store := storage.NewMemoryAdapter()
	store.PutCustomer(domain.Customer{ID: customerID, Username: "alice", Email: "alice@example.com"})

	metrics := &mockMetrics{}
	deps := Deps{
		Ledger:    store,
		Baskets:   store,
		Orders:    store,
		Addresses: store,
		Customers: store,
		Tx:        store,
		Metrics:   metrics,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc := NewOrderService(deps, 1000)
	t.Cleanup(svc.Close)

	return &fixture{
		store:   store,
		baskets: NewBasketService(store, store, store),
		orders:  svc,
		metrics: metrics,
	}
}

func (f *fixture) product(id int64, price string, qty int) {
	f.store.PutProduct(domain.Product{
		ID:        id,
		Name:      fmt.Sprintf("product-%d", id),
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	})
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

// mockMetrics records outcomes.
type mockMetrics struct {
	mu            sync.Mutex
	checkouts     []string
	cancellations []string
	restored      int
}

func (m *mockMetrics) ObserveCheckout(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkouts = append(m.checkouts, outcome)
}

func (m *mockMetrics) ObserveCancellation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancellations = append(m.cancellations, outcome)
}

func (m *mockMetrics) StockRestored(units int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored += units
}

// mockCacheRepo is an in-process stock gate.
type mockCacheRepo struct {
	stock          map[int64]int
	idempotencySet map[string]bool
	released       int
	reserveErr     error
	mu             sync.Mutex
}

func newMockCacheRepo(stock map[int64]int) *mockCacheRepo {
	return &mockCacheRepo{
		stock:          stock,
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockCacheRepo) ReserveStock(ctx context.Context, reservations []domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reserveErr != nil {
		return m.reserveErr
	}
	for _, r := range reservations {
		if available, ok := m.stock[r.ProductID]; ok && available < r.Quantity {
			return &domain.InsufficientStockError{ProductID: r.ProductID, Available: available, Requested: r.Quantity}
		}
	}
	for _, r := range reservations {
		if _, ok := m.stock[r.ProductID]; ok {
			m.stock[r.ProductID] -= r.Quantity
		}
	}
	return nil
}

func (m *mockCacheRepo) ReleaseStock(ctx context.Context, reservations []domain.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range reservations {
		if _, ok := m.stock[r.ProductID]; ok {
			m.stock[r.ProductID] += r.Quantity
			m.released += r.Quantity
		}
	}
	return nil
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

// failingOrders wraps a repository and fails CreateOrder.
type failingOrders struct {
	*storage.MemoryAdapter
}

var errDiskFull = errors.New("disk full")

func (f failingOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	return errDiskFull
}

// hookedLedger calls before ahead of each ReserveAll.
type hookedLedger struct {
	*storage.MemoryAdapter
	before func()
}

func (h hookedLedger) ReserveAll(ctx context.Context, reservations []domain.Reservation) (map[int64]domain.Product, error) {
	h.before()
	return h.MemoryAdapter.ReserveAll(ctx, reservations)
}

// cancelOnStatusChange cancels the caller's context while the status write
// is still inside the transaction.
type cancelOnStatusChange struct {
	*storage.MemoryAdapter
	cancel context.CancelFunc
}

func (c cancelOnStatusChange) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	c.cancel()
	return c.MemoryAdapter.UpdateOrderStatus(ctx, id, from, to)
}
