package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func redisStock(t *testing.T, client *redis.Client, productID int64) int {
	t.Helper()
	n, err := client.Get(context.Background(), stockKey(productID)).Int()
	require.NoError(t, err)
	return n
}

func TestReserveStock_Success(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	require.NoError(t, adapter.SetStock(ctx, 9001, 10))
	require.NoError(t, adapter.SetStock(ctx, 9002, 4))

	err := adapter.ReserveStock(ctx, []domain.Reservation{
		{ProductID: 9002, Quantity: 4},
		{ProductID: 9001, Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 7, redisStock(t, client, 9001))
	assert.Equal(t, 0, redisStock(t, client, 9002))
}

func TestReserveStock_AllOrNothing(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	require.NoError(t, adapter.SetStock(ctx, 9001, 10))
	require.NoError(t, adapter.SetStock(ctx, 9002, 10))

	err := adapter.ReserveStock(ctx, []domain.Reservation{
		{ProductID: 9001, Quantity: 5},
		{ProductID: 9002, Quantity: 50},
	})
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, int64(9002), stockErr.ProductID)
	assert.Equal(t, 10, stockErr.Available)
	assert.Equal(t, 50, stockErr.Requested)

	assert.Equal(t, 10, redisStock(t, client, 9001))
	assert.Equal(t, 10, redisStock(t, client, 9002))
}

func TestReserveStock_MissingKeyIsNotGated(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, stockKey(9003))
	require.NoError(t, adapter.SetStock(ctx, 9001, 2))

	err := adapter.ReserveStock(ctx, []domain.Reservation{
		{ProductID: 9001, Quantity: 2},
		{ProductID: 9003, Quantity: 100},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, redisStock(t, client, 9001))
	exists, _ := client.Exists(ctx, stockKey(9003)).Result()
	assert.Zero(t, exists)
}

func TestReserveStock_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	initialStock := 20
	totalRequests := 50
	require.NoError(t, adapter.SetStock(ctx, 9004, initialStock))

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.ReserveStock(ctx, []domain.Reservation{{ProductID: 9004, Quantity: 1}})
			switch {
			case err == nil:
				successCount.Add(1)
			case !errors.Is(err, domain.ErrInsufficientStock):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, 0, redisStock(t, client, 9004))
}

func TestReleaseStock(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	require.NoError(t, adapter.SetStock(ctx, 9001, 5))
	client.Del(ctx, stockKey(9003))

	err := adapter.ReleaseStock(ctx, []domain.Reservation{
		{ProductID: 9001, Quantity: 3},
		{ProductID: 9003, Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 8, redisStock(t, client, 9001))
	exists, _ := client.Exists(ctx, stockKey(9003)).Result()
	assert.Zero(t, exists, "release must not create gate keys")
}

func TestSyncStock(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	require.NoError(t, adapter.SyncStock(ctx, []domain.Product{
		{ID: 9001, Quantity: 11},
		{ID: 9002, Quantity: 0},
	}))

	assert.Equal(t, 11, redisStock(t, client, 9001))
	assert.Equal(t, 0, redisStock(t, client, 9002))
}

func TestSetIdempotency(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "test-idem-key")

	ok, err := adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.True(t, ok, "first call should succeed")

	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.False(t, ok, "second call should fail")

	require.NoError(t, adapter.ReleaseIdempotency(ctx, "test-idem-key"))
	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.True(t, ok, "released key can be claimed again")
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "concurrent-idem-key")

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load(), "only one should succeed")
}
