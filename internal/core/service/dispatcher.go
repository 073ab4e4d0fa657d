package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

const publishTimeout = 5 * time.Second

// DispatchEvents drains queue until it is closed. A failed publish is logged
// and dropped; the order it describes is already committed.
func DispatchEvents(id int, queue <-chan domain.OrderEvent, publisher port.EventPublisher, logger *slog.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.Publish(ctx, event); err != nil {
			logger.Error("failed to publish order event",
				"worker", id, "order_id", event.OrderID, "event", event.Type, "error", err)
		} else {
			logger.Debug("published order event", "worker", id, "order_id", event.OrderID, "event", event.Type)
		}

		cancel()
	}
}
