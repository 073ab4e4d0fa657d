package messaging

import (
	"context"
	"log/slog"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

var _ port.EventPublisher = (*LogPublisher)(nil)

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.OrderEvent) error {
	p.logger.InfoContext(ctx, "order event",
		"event", event.Type,
		"order_id", event.OrderID,
		"status", event.Status,
		"previous_status", event.Previous,
		"total", event.Total.String(),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
