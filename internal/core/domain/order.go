package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// position on the success path; Cancelled is off the path.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusPaid:       2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// ParseOrderStatus accepts any casing of the enumerated statuses and rejects
// everything else before it can reach the state machine.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", &ValidationError{Field: "status", Message: "unknown order status " + s}
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == OrderStatusCancelled
}

// Terminal reports whether no further transition is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Cancellable is false once goods are dispatched or the order is terminal.
func (s OrderStatus) Cancellable() bool {
	return !s.Terminal() && s != OrderStatusShipped
}

// CanTransition enforces the one-way lifecycle:
// Pending → Processing → Paid → Shipped → Delivered, plus Cancelled from
// Pending, Processing or Paid.
func (s OrderStatus) CanTransition(to OrderStatus) error {
	if s.Terminal() || !to.Valid() {
		return &TransitionError{From: s, To: to}
	}
	if to == OrderStatusCancelled {
		if !s.Cancellable() {
			return &TransitionError{From: s, To: to}
		}
		return nil
	}
	if statusRank[to] <= statusRank[s] {
		return &TransitionError{From: s, To: to}
	}
	return nil
}

// OrderLine is the snapshot of one purchased product, written once at creation.
type OrderLine struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is the permanent record of a checkout. Only Status and UpdatedAt
// change after creation.
type Order struct {
	ID         string
	CustomerID *int64 // nil for guest orders
	GuestEmail string
	Address    Address
	Status     OrderStatus
	Total      decimal.Decimal
	Lines      []OrderLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (o Order) IsGuest() bool { return o.CustomerID == nil }

// Reservations returns the stock effect of the order, used to restore it.
func (o Order) Reservations() []Reservation {
	out := make([]Reservation, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, Reservation{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return NormalizeReservations(out)
}

// NewOrder builds a pending order from reserved products. products must hold
// the catalog state observed at reservation time; their prices are captured.
func NewOrder(id string, checkout Checkout, address Address, reservations []Reservation, products map[int64]Product, now time.Time) Order {
	lines := make([]OrderLine, 0, len(reservations))
	total := decimal.Zero
	for _, r := range reservations {
		p := products[r.ProductID]
		line := OrderLine{
			ProductID:   r.ProductID,
			ProductName: p.Name,
			Quantity:    r.Quantity,
			UnitPrice:   p.UnitPrice,
		}
		total = total.Add(line.Subtotal())
		lines = append(lines, line)
	}

	order := Order{
		ID:        id,
		Address:   address,
		Status:    OrderStatusPending,
		Total:     total,
		Lines:     lines,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch c := checkout.(type) {
	case AuthenticatedCheckout:
		customerID := c.CustomerID
		order.CustomerID = &customerID
	case GuestCheckout:
		order.GuestEmail = strings.TrimSpace(c.Email)
	}
	return order
}
