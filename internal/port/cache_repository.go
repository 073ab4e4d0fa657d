package port

import (
	"context"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

// CacheRepository is the optional stock gate in front of the ledger.
type CacheRepository interface {
	// ReserveStock atomically decrements every gated product or none,
	// returns *domain.InsufficientStockError if one line cannot be served
	ReserveStock(ctx context.Context, reservations []domain.Reservation) error

	// ReleaseStock restores stock (for rollback on failure and cancellation)
	ReleaseStock(ctx context.Context, reservations []domain.Reservation) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key claimed by a checkout that failed
	ReleaseIdempotency(ctx context.Context, key string) error
}

// EventPublisher delivers committed order events.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}
