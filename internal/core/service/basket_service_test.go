package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

func TestAdd_MergesRepeatedProduct(t *testing.T) {
	f := newFixture(t)
	f.product(10, "2.50", 100)
	ctx := context.Background()

	first, err := f.baskets.Add(ctx, customerID, 10, 5)
	require.NoError(t, err)
	second, err := f.baskets.Add(ctx, customerID, 10, 3)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	lines, err := f.baskets.List(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 8, lines[0].Quantity)
}

func TestAdd_InvalidQuantity(t *testing.T) {
	f := newFixture(t)
	f.product(10, "1", 10)

	for _, q := range []int{0, -1} {
		_, err := f.baskets.Add(context.Background(), customerID, 10, q)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	}
}

func TestAdd_UnknownProductOrCustomer(t *testing.T) {
	f := newFixture(t)
	f.product(10, "1", 10)

	_, err := f.baskets.Add(context.Background(), customerID, 99, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.baskets.Add(context.Background(), 42, 10, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdd_MergedTotalExceedsStock(t *testing.T) {
	f := newFixture(t)
	f.product(10, "1", 10)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, customerID, 10, 7)
	require.NoError(t, err)

	_, err = f.baskets.Add(ctx, customerID, 10, 4)
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, 10, stockErr.Available)
	assert.Equal(t, 11, stockErr.Requested)

	lines, _ := f.baskets.List(ctx, customerID)
	require.Len(t, lines, 1)
	assert.Equal(t, 7, lines[0].Quantity)
}

func TestAdd_ConcurrentMergeNeverExceedsStock(t *testing.T) {
	f := newFixture(t)
	f.product(10, "1", 10)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.baskets.Add(ctx, customerID, 10, 1); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), successCount.Load())
	lines, _ := f.baskets.List(ctx, customerID)
	require.Len(t, lines, 1)
	assert.Equal(t, 10, lines[0].Quantity)
}

func TestUpdateQuantity(t *testing.T) {
	f := newFixture(t)
	f.product(10, "1", 10)
	ctx := context.Background()

	line, err := f.baskets.Add(ctx, customerID, 10, 2)
	require.NoError(t, err)

	updated, err := f.baskets.UpdateQuantity(ctx, line.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 9, updated.Quantity)

	_, err = f.baskets.UpdateQuantity(ctx, line.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.baskets.UpdateQuantity(ctx, line.ID, 11)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = f.baskets.UpdateQuantity(ctx, 404, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	lines, _ := f.baskets.List(ctx, customerID)
	assert.Equal(t, 9, lines[0].Quantity)
}

func TestRemoveAndClear_AreIdempotent(t *testing.T) {
	f := newFixture(t)
	f.product(10, "1", 10)
	f.product(11, "1", 10)
	ctx := context.Background()

	assert.NoError(t, f.baskets.Clear(ctx, customerID))
	assert.NoError(t, f.baskets.Remove(ctx, 12345))

	line, err := f.baskets.Add(ctx, customerID, 10, 1)
	require.NoError(t, err)
	_, err = f.baskets.Add(ctx, customerID, 11, 4)
	require.NoError(t, err)

	n, err := f.baskets.Count(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "count is distinct lines, not summed quantity")

	require.NoError(t, f.baskets.Remove(ctx, line.ID))
	require.NoError(t, f.baskets.Remove(ctx, line.ID))
	n, _ = f.baskets.Count(ctx, customerID)
	assert.Equal(t, 1, n)

	require.NoError(t, f.baskets.Clear(ctx, customerID))
	require.NoError(t, f.baskets.Clear(ctx, customerID))
	n, _ = f.baskets.Count(ctx, customerID)
	assert.Equal(t, 0, n)
}

func TestList_OrderedByLineID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []int64{30, 10, 20} {
		f.product(id, "1", 5)
		_, err := f.baskets.Add(ctx, customerID, id, 1)
		require.NoError(t, err)
	}

	lines, err := f.baskets.List(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for i := 1; i < len(lines); i++ {
		assert.Less(t, lines[i-1].ID, lines[i].ID)
	}
	assert.Equal(t, int64(30), lines[0].ProductID)
}
