package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderPlaced        EventType = "order.placed"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventOrderCancelled     EventType = "order.cancelled"
)

// OrderEvent is emitted after the corresponding transaction has committed.
type OrderEvent struct {
	Type       EventType       `json:"type"`
	OrderID    string          `json:"order_id"`
	CustomerID *int64          `json:"customer_id,omitempty"`
	GuestEmail string          `json:"guest_email,omitempty"`
	Status     OrderStatus     `json:"status"`
	Previous   OrderStatus     `json:"previous_status,omitempty"`
	Total      decimal.Decimal `json:"total"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewOrderEvent(t EventType, order Order, previous OrderStatus, at time.Time) OrderEvent {
	return OrderEvent{
		Type:       t,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		GuestEmail: order.GuestEmail,
		Status:     order.Status,
		Previous:   previous,
		Total:      order.Total,
		OccurredAt: at,
	}
}
