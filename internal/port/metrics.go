package port

import "time"

// Metrics records checkout outcomes. Outcome labels are stable error codes.
type Metrics interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
	ObserveCancellation(outcome string)
	StockRestored(units int)
}
