package domain

import "time"

// BasketLine is a pending line item. At most one line exists per
// (CustomerID, ProductID).
type BasketLine struct {
	ID         int64
	CustomerID int64
	ProductID  int64
	Quantity   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Customer struct {
	ID       int64
	Username string
	Email    string
}
