package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the stock-bearing catalog item. Quantity is only mutated through
// the stock ledger.
type Product struct {
	ID         int64
	Name       string
	UnitPrice  decimal.Decimal
	Quantity   int
	BrandID    int64
	CategoryID int64
	Version    int // optimistic locking for catalog saves
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Reservation is a request to take Quantity units of ProductID out of stock.
type Reservation struct {
	ProductID int64
	Quantity  int
}

// NormalizeReservations merges duplicate products and sorts by product id so
// every caller acquires product rows in the same order.
func NormalizeReservations(in []Reservation) []Reservation {
	merged := make(map[int64]int, len(in))
	for _, r := range in {
		merged[r.ProductID] += r.Quantity
	}

	out := make([]Reservation, 0, len(merged))
	for id, qty := range merged {
		out = append(out, Reservation{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
