package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

// Deps are the collaborators of OrderService. Cache, Metrics, Logger, Now and
// NewID are optional.
type Deps struct {
	Ledger    port.StockLedger
	Baskets   port.BasketRepository
	Orders    port.OrderRepository
	Addresses port.AddressRepository
	Customers port.CustomerDirectory
	Tx        port.Transactor

	Cache   port.CacheRepository
	Metrics port.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// OrderService converts baskets into orders and drives the order lifecycle.
type OrderService struct {
	ledger    port.StockLedger
	baskets   port.BasketRepository
	orders    port.OrderRepository
	addresses port.AddressRepository
	customers port.CustomerDirectory
	tx        port.Transactor
	cache     port.CacheRepository
	metrics   port.Metrics
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu         sync.RWMutex
	closed     bool
	eventQueue chan domain.OrderEvent
}

func NewOrderService(deps Deps, queueSize int) *OrderService {
	s := &OrderService{
		ledger:     deps.Ledger,
		baskets:    deps.Baskets,
		orders:     deps.Orders,
		addresses:  deps.Addresses,
		customers:  deps.Customers,
		tx:         deps.Tx,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
		newID:      deps.NewID,
		eventQueue: make(chan domain.OrderEvent, queueSize),
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// CreateOrder reserves stock for every line, records the order with a priced
// snapshot of its lines and address, and clears the originating basket lines,
// all in one transaction. An empty idempotencyKey disables replay detection.
func (s *OrderService) CreateOrder(ctx context.Context, checkout domain.Checkout, idempotencyKey string) (domain.Order, error) {
	start := time.Now()
	order, err := s.createOrder(ctx, checkout, idempotencyKey)
	s.metrics.ObserveCheckout(domain.Code(err), time.Since(start))
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("order placed", "order_id", order.ID, "lines", len(order.Lines), "total", order.Total.String())
	s.enqueue(domain.NewOrderEvent(domain.EventOrderPlaced, order, "", s.now()))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, checkout domain.Checkout, idempotencyKey string) (_ domain.Order, err error) {
	if checkout == nil {
		return domain.Order{}, &domain.ValidationError{Field: "checkout", Message: "is required"}
	}
	if err := checkout.Validate(); err != nil {
		return domain.Order{}, err
	}
	if c, ok := checkout.(domain.AuthenticatedCheckout); ok {
		if _, err := s.customers.GetCustomer(ctx, c.CustomerID); err != nil {
			return domain.Order{}, err
		}
	}

	if s.cache != nil && idempotencyKey != "" {
		key := fmt.Sprintf("checkout:%s", idempotencyKey)
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return domain.Order{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Order{}, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Warn("failed to release idempotency key", "key", key, "error", releaseErr)
			}
		}()
	}

	var gated []domain.Reservation
	defer func() {
		if err == nil || gated == nil {
			return
		}
		s.releaseGate(context.WithoutCancel(ctx), gated, "rollback")
	}()

	// the basket is read inside the transaction so the lines that are
	// reserved are the lines that are consumed
	var order domain.Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		reservations, lines, err := s.resolveLines(ctx, checkout)
		if err != nil {
			return err
		}
		if len(reservations) == 0 {
			return domain.ErrEmptyBasket
		}

		if s.cache != nil {
			if err := s.cache.ReserveStock(ctx, reservations); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					return err
				}
				return fmt.Errorf("stock gate: %w", err)
			}
			gated = reservations
		}

		products, err := s.ledger.ReserveAll(ctx, reservations)
		if err != nil {
			return err
		}

		address, err := s.addresses.SaveAddress(ctx, checkout.ShippingAddress().Snapshot())
		if err != nil {
			return fmt.Errorf("save address: %w", err)
		}

		order = domain.NewOrder(s.newID(), checkout, address, reservations, products, s.now())
		if err := s.orders.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if len(lines) > 0 {
			if err := s.baskets.ConsumeLines(ctx, lines); err != nil {
				return fmt.Errorf("clear basket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// resolveLines returns the normalized reservations of the checkout and, for
// an authenticated checkout, the locked basket lines they came from.
func (s *OrderService) resolveLines(ctx context.Context, checkout domain.Checkout) ([]domain.Reservation, []domain.BasketLine, error) {
	var (
		reservations []domain.Reservation
		lines        []domain.BasketLine
	)

	switch c := checkout.(type) {
	case domain.AuthenticatedCheckout:
		var err error
		lines, err = s.baskets.LockLines(ctx, c.CustomerID)
		if err != nil {
			return nil, nil, fmt.Errorf("list basket: %w", err)
		}
		for _, l := range lines {
			reservations = append(reservations, domain.Reservation{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	case domain.GuestCheckout:
		for _, l := range c.Lines {
			reservations = append(reservations, domain.Reservation{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	default:
		return nil, nil, &domain.ValidationError{Field: "checkout", Message: fmt.Sprintf("unsupported checkout %T", checkout)}
	}

	return domain.NormalizeReservations(reservations), lines, nil
}

// CancelOrder moves the order to Cancelled and returns its lines to stock in
// the same transaction. Lines whose product no longer exists are skipped.
func (s *OrderService) CancelOrder(ctx context.Context, id string) (domain.Order, error) {
	var (
		cancelled domain.Order
		previous  domain.OrderStatus
		restored  int
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		restored = 0
		order, err := s.orders.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := order.Status.CanTransition(domain.OrderStatusCancelled); err != nil {
			return err
		}

		// the status guard runs first so a concurrent cancel fails before
		// touching stock
		cancelled, err = s.orders.UpdateOrderStatus(ctx, id, order.Status, domain.OrderStatusCancelled)
		if err != nil {
			return err
		}
		previous = order.Status

		for _, r := range order.Reservations() {
			if err := s.ledger.Restore(ctx, r.ProductID, r.Quantity); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					s.logger.Warn("skipping stock restore for missing product", "order_id", id, "product_id", r.ProductID)
					continue
				}
				return fmt.Errorf("restore stock: %w", err)
			}
			restored += r.Quantity
		}
		return nil
	})
	s.metrics.ObserveCancellation(domain.Code(err))
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.StockRestored(restored)
	if s.cache != nil {
		s.releaseGate(context.WithoutCancel(ctx), cancelled.Reservations(), "cancel")
	}
	s.logger.Info("order cancelled", "order_id", id, "previous_status", previous, "units_restored", restored)
	s.enqueue(domain.NewOrderEvent(domain.EventOrderCancelled, cancelled, previous, s.now()))
	return cancelled, nil
}

// UpdateStatus advances the order along its lifecycle. Cancelled is routed
// through CancelOrder so stock is always restored.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, &domain.ValidationError{Field: "status", Message: "unknown order status " + string(to)}
	}
	if to == domain.OrderStatusCancelled {
		return s.CancelOrder(ctx, id)
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := order.Status.CanTransition(to); err != nil {
		return domain.Order{}, err
	}

	updated, err := s.orders.UpdateOrderStatus(ctx, id, order.Status, to)
	if err != nil {
		return domain.Order{}, err
	}

	s.enqueue(domain.NewOrderEvent(domain.EventOrderStatusChanged, updated, order.Status, s.now()))
	return updated, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx)
}

// ListCustomerOrders returns the customer's orders, newest first.
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID int64) ([]domain.Order, error) {
	if _, err := s.customers.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.orders.ListOrdersByCustomer(ctx, customerID)
}

func (s *OrderService) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: "unknown order status " + string(status)}
	}
	return s.orders.ListOrdersByStatus(ctx, status)
}

func (s *OrderService) releaseGate(ctx context.Context, reservations []domain.Reservation, reason string) {
	if err := s.cache.ReleaseStock(ctx, reservations); err != nil {
		s.logger.Error("CRITICAL stock gate release failed", "reason", reason, "error", err)
	}
}

func (s *OrderService) enqueue(event domain.OrderEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.eventQueue <- event:
	default:
		s.logger.Warn("event queue full, dropping event", "event", event.Type, "order_id", event.OrderID)
	}
}

func (s *OrderService) GetEventQueue() <-chan domain.OrderEvent {
	return s.eventQueue
}

func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.eventQueue)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCheckout(string, time.Duration) {}
func (nopMetrics) ObserveCancellation(string)            {}
func (nopMetrics) StockRestored(int)                     {}
