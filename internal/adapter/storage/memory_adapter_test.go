package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

func newSeededMemory(t *testing.T) *MemoryAdapter {
	t.Helper()
	m := NewMemoryAdapter()
	m.PutProduct(domain.Product{ID: 1, Name: "a", UnitPrice: decimal.NewFromInt(2), Quantity: 10})
	m.PutProduct(domain.Product{ID: 2, Name: "b", UnitPrice: decimal.NewFromInt(3), Quantity: 10})
	m.PutCustomer(domain.Customer{ID: 1, Username: "alice"})
	return m
}

func memStock(t *testing.T, m *MemoryAdapter, id int64) int {
	t.Helper()
	p, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func TestMemory_ReserveAll(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()

	products, err := m.ReserveAll(ctx, []domain.Reservation{
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 4},
		{ProductID: 2, Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, products[1].Quantity)
	assert.Equal(t, 7, products[2].Quantity)

	_, err = m.ReserveAll(ctx, []domain.Reservation{
		{ProductID: 1, Quantity: 1},
		{ProductID: 2, Quantity: 8},
	})
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 7, stockErr.Available)
	assert.Equal(t, 6, memStock(t, m, 1), "no partial decrement")

	_, err = m.ReserveAll(ctx, []domain.Reservation{{ProductID: 3, Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.ReserveAll(ctx, []domain.Reservation{{ProductID: 1, Quantity: 0}})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestMemory_WithinTx_UndoesEverything(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()

	line, err := m.UpsertLine(ctx, 1, 1, func(int) (int, error) { return 2, nil })
	require.NoError(t, err)
	require.NoError(t, m.CreateOrder(ctx, domain.Order{ID: "kept", Status: domain.OrderStatusPending}))

	errBoom := errors.New("boom")
	err = m.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := m.ReserveAll(ctx, []domain.Reservation{{ProductID: 1, Quantity: 5}}); err != nil {
			return err
		}
		if err := m.Restore(ctx, 2, 3); err != nil {
			return err
		}
		if _, err := m.SaveAddress(ctx, domain.Address{Street: "x"}); err != nil {
			return err
		}
		if err := m.CreateOrder(ctx, domain.Order{ID: "dropped", Status: domain.OrderStatusPending}); err != nil {
			return err
		}
		if _, err := m.UpdateOrderStatus(ctx, "kept", domain.OrderStatusPending, domain.OrderStatusPaid); err != nil {
			return err
		}
		if err := m.DeleteLines(ctx, line.ID); err != nil {
			return err
		}
		// nested calls join the outer journal
		return m.WithinTx(ctx, func(ctx context.Context) error { return errBoom })
	})
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, 10, memStock(t, m, 1))
	assert.Equal(t, 10, memStock(t, m, 2))
	assert.Empty(t, m.addresses)

	_, err = m.GetOrder(ctx, "dropped")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	kept, err := m.GetOrder(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, kept.Status)

	lines, _ := m.ListLines(ctx, 1)
	require.Len(t, lines, 1)
	assert.Equal(t, line.ID, lines[0].ID)
}

func TestMemory_UpsertLine_RejectedLeavesNoLine(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()

	_, err := m.UpsertLine(ctx, 1, 1, func(int) (int, error) { return 0, domain.ErrInsufficientStock })
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	n, _ := m.CountLines(ctx, 1)
	assert.Equal(t, 0, n)
}

func TestMemory_UpsertLine_LineRemovedDuringMerge(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()

	old, err := m.UpsertLine(ctx, 1, 1, func(int) (int, error) { return 3, nil })
	require.NoError(t, err)

	calls := 0
	line, err := m.UpsertLine(ctx, 1, 1, func(current int) (int, error) {
		calls++
		if calls == 1 {
			require.NoError(t, m.DeleteLines(ctx, old.ID))
		}
		return current + 4, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.NotEqual(t, old.ID, line.ID)
	assert.Equal(t, 4, line.Quantity)

	lines, _ := m.ListLines(ctx, 1)
	require.Len(t, lines, 1)
	assert.Equal(t, line, lines[0])
}

func TestMemory_UpdateLine_LineRemovedDuringUpdate(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()

	old, err := m.UpsertLine(ctx, 1, 1, func(int) (int, error) { return 3, nil })
	require.NoError(t, err)

	_, err = m.UpdateLine(ctx, old.ID, func(domain.BasketLine) (int, error) {
		require.NoError(t, m.ClearBasket(ctx, 1))
		return 6, nil
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, _ := m.CountLines(ctx, 1)
	assert.Equal(t, 0, n)
}

func TestMemory_ConsumeLines(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()

	grown, err := m.UpsertLine(ctx, 1, 1, func(int) (int, error) { return 5, nil })
	require.NoError(t, err)
	exact, err := m.UpsertLine(ctx, 1, 2, func(int) (int, error) { return 2, nil })
	require.NoError(t, err)

	read := grown
	read.Quantity = 2

	errBoom := errors.New("boom")
	err = m.WithinTx(ctx, func(ctx context.Context) error {
		if err := m.ConsumeLines(ctx, []domain.BasketLine{read, exact}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	lines, _ := m.ListLines(ctx, 1)
	assert.Equal(t, []domain.BasketLine{grown, exact}, lines)

	require.NoError(t, m.ConsumeLines(ctx, []domain.BasketLine{read, exact}))
	lines, _ = m.ListLines(ctx, 1)
	require.Len(t, lines, 1)
	assert.Equal(t, grown.ID, lines[0].ID)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestMemory_KeyLocksReleased(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(product int64) {
			defer wg.Done()
			line, err := m.UpsertLine(ctx, 1, product, func(current int) (int, error) { return current + 1, nil })
			if err == nil {
				m.UpdateLine(ctx, line.ID, func(domain.BasketLine) (int, error) { return 1, nil })
			}
		}(int64(i%2 + 1))
	}
	wg.Wait()

	m.basketMu.Lock()
	defer m.basketMu.Unlock()
	assert.Empty(t, m.keyLocks)
}

func TestMemory_SaveProduct_OptimisticLock(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()

	p, err := m.GetProduct(ctx, 1)
	require.NoError(t, err)
	p.Name = "renamed"
	p.Quantity = 999
	require.NoError(t, m.SaveProduct(ctx, p))

	stored, _ := m.GetProduct(ctx, 1)
	assert.Equal(t, "renamed", stored.Name)
	assert.Equal(t, 10, stored.Quantity, "quantity is owned by the ledger")
	assert.Equal(t, 1, stored.Version)

	assert.ErrorIs(t, m.SaveProduct(ctx, p), ErrOptimisticLock)
}

func TestMemory_UpdateOrderStatus_CompareAndSwap(t *testing.T) {
	m := newSeededMemory(t)
	ctx := context.Background()
	require.NoError(t, m.CreateOrder(ctx, domain.Order{ID: "o1", Status: domain.OrderStatusPending}))

	_, err := m.UpdateOrderStatus(ctx, "o1", domain.OrderStatusPaid, domain.OrderStatusShipped)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = m.UpdateOrderStatus(ctx, "missing", domain.OrderStatusPending, domain.OrderStatusPaid)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	o, err := m.UpdateOrderStatus(ctx, "o1", domain.OrderStatusPending, domain.OrderStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, o.Status)
}
