package port

import (
	"context"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

// Catalog is the product collaborator owned by the catalog CRUD layer.
type Catalog interface {
	// GetProduct returns domain.ErrNotFound for unknown ids
	GetProduct(ctx context.Context, id int64) (domain.Product, error)

	// SaveProduct updates name, price and references with a version check
	SaveProduct(ctx context.Context, product domain.Product) error
}

type CustomerDirectory interface {
	// GetCustomer returns domain.ErrNotFound for unknown ids
	GetCustomer(ctx context.Context, id int64) (domain.Customer, error)
}

type AddressRepository interface {
	// SaveAddress stores a fresh address row and returns it with its id
	SaveAddress(ctx context.Context, address domain.Address) (domain.Address, error)
}

// StockLedger owns each product's available quantity.
type StockLedger interface {
	// Get reads the product including its current quantity
	Get(ctx context.Context, productID int64) (domain.Product, error)

	// CheckAndReserve atomically decrements stock if enough is available
	CheckAndReserve(ctx context.Context, productID int64, quantity int) (domain.Product, error)

	// ReserveAll reserves every line or none of them, in ascending product order.
	// The returned products reflect prices at reservation time.
	ReserveAll(ctx context.Context, reservations []domain.Reservation) (map[int64]domain.Product, error)

	// Restore increments stock for cancellation compensation
	Restore(ctx context.Context, productID int64, quantity int) error
}

type BasketRepository interface {
	// UpsertLine runs fn with the current quantity of the (customer, product) line,
	// 0 when absent, while holding that key exclusively, and stores the result.
	// Nothing is written when fn fails.
	UpsertLine(ctx context.Context, customerID, productID int64, fn func(current int) (int, error)) (domain.BasketLine, error)

	// UpdateLine does the same for an existing line; domain.ErrNotFound if missing
	UpdateLine(ctx context.Context, lineID int64, fn func(line domain.BasketLine) (int, error)) (domain.BasketLine, error)

	// ListLines returns the customer's lines ordered by line id
	ListLines(ctx context.Context, customerID int64) ([]domain.BasketLine, error)

	// CountLines returns the number of distinct lines
	CountLines(ctx context.Context, customerID int64) (int, error)

	// LockLines is ListLines for checkout: the lines stay locked until the
	// surrounding transaction ends.
	LockLines(ctx context.Context, customerID int64) ([]domain.BasketLine, error)

	// ConsumeLines takes the given quantities out of the lines. A line that
	// grew since it was read keeps the difference; the rest are deleted.
	ConsumeLines(ctx context.Context, consumed []domain.BasketLine) error

	// DeleteLines removes the given lines; missing ids are ignored
	DeleteLines(ctx context.Context, lineIDs ...int64) error

	// ClearBasket removes every line of the customer
	ClearBasket(ctx context.Context, customerID int64) error
}

type OrderRepository interface {
	// CreateOrder persists the order with its line snapshots
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns domain.ErrNotFound for unknown ids
	GetOrder(ctx context.Context, id string) (domain.Order, error)

	// UpdateOrderStatus changes status only if it still equals from
	UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error)

	ListOrders(ctx context.Context) ([]domain.Order, error)

	// ListOrdersByCustomer returns newest orders first
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error)

	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
}

// Transactor runs fn as one atomic unit. Repositories called with the context
// passed to fn take part in the same transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
