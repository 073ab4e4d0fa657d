package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

const (
	stockKeyPrefix    = "stock:"
	idempotencyKeyTTL = 24 * time.Hour
)

// reserveStockScript checks every line before touching any of them, so a
// rejected request leaves all counters as they were. Missing keys are not
// gated; the database stays authoritative for them.
var reserveStockScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	local current = redis.call('GET', key)
	if current and tonumber(current) < tonumber(ARGV[i]) then
		return {0, i, tonumber(current)}
	end
end

for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		redis.call('DECRBY', key, ARGV[i])
	end
end

return {1, 0, 0}
`)

var releaseStockScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		redis.call('INCRBY', key, ARGV[i])
	end
end
return 1
`)

var (
	_ port.CacheRepository = (*RedisAdapter)(nil)
)

// RedisAdapter is the fast-path stock gate in front of the database ledger.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func stockKey(productID int64) string {
	return stockKeyPrefix + strconv.FormatInt(productID, 10)
}

func scriptArgs(reservations []domain.Reservation) ([]string, []any) {
	keys := make([]string, len(reservations))
	args := make([]any, len(reservations))
	for i, r := range reservations {
		keys[i] = stockKey(r.ProductID)
		args[i] = r.Quantity
	}
	return keys, args
}

func (r *RedisAdapter) ReserveStock(ctx context.Context, reservations []domain.Reservation) error {
	reservations = domain.NormalizeReservations(reservations)
	if len(reservations) == 0 {
		return nil
	}

	keys, args := scriptArgs(reservations)
	result, err := reserveStockScript.Run(ctx, r.client, keys, args...).Int64Slice()
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if len(result) != 3 {
		return fmt.Errorf("reserve stock: unexpected script result %v", result)
	}

	if result[0] == 1 {
		return nil
	}
	line := reservations[result[1]-1]
	return &domain.InsufficientStockError{
		ProductID: line.ProductID,
		Available: int(result[2]),
		Requested: line.Quantity,
	}
}

func (r *RedisAdapter) ReleaseStock(ctx context.Context, reservations []domain.Reservation) error {
	reservations = domain.NormalizeReservations(reservations)
	if len(reservations) == 0 {
		return nil
	}

	keys, args := scriptArgs(reservations)
	if err := releaseStockScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) SetStock(ctx context.Context, productID int64, quantity int) error {
	return r.client.Set(ctx, stockKey(productID), quantity, 0).Err()
}

// SyncStock overwrites the gate counters with the ledger quantities.
func (r *RedisAdapter) SyncStock(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, p := range products {
		pipe.Set(ctx, stockKey(p.ID), p.Quantity, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sync stock: %w", err)
	}
	return nil
}
