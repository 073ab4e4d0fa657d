package service

import (
	"context"
	"fmt"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

// BasketService holds per-customer pending lines prior to checkout.
type BasketService struct {
	baskets   port.BasketRepository
	ledger    port.StockLedger
	customers port.CustomerDirectory
}

func NewBasketService(baskets port.BasketRepository, ledger port.StockLedger, customers port.CustomerDirectory) *BasketService {
	return &BasketService{baskets: baskets, ledger: ledger, customers: customers}
}

// Add merges quantity into the customer's line for productID. The merged
// quantity is checked against current stock; on failure the existing line is
// left unchanged. Final enforcement happens at checkout.
func (s *BasketService) Add(ctx context.Context, customerID, productID int64, quantity int) (domain.BasketLine, error) {
	if quantity <= 0 {
		return domain.BasketLine{}, domain.ErrInvalidQuantity
	}
	if _, err := s.customers.GetCustomer(ctx, customerID); err != nil {
		return domain.BasketLine{}, err
	}
	if _, err := s.ledger.Get(ctx, productID); err != nil {
		return domain.BasketLine{}, err
	}

	return s.baskets.UpsertLine(ctx, customerID, productID, func(current int) (int, error) {
		merged := current + quantity
		if err := s.checkStock(ctx, productID, merged); err != nil {
			return 0, err
		}
		return merged, nil
	})
}

func (s *BasketService) List(ctx context.Context, customerID int64) ([]domain.BasketLine, error) {
	return s.baskets.ListLines(ctx, customerID)
}

// UpdateQuantity replaces the quantity of an existing line.
func (s *BasketService) UpdateQuantity(ctx context.Context, lineID int64, quantity int) (domain.BasketLine, error) {
	if quantity <= 0 {
		return domain.BasketLine{}, domain.ErrInvalidQuantity
	}

	return s.baskets.UpdateLine(ctx, lineID, func(line domain.BasketLine) (int, error) {
		if err := s.checkStock(ctx, line.ProductID, quantity); err != nil {
			return 0, err
		}
		return quantity, nil
	})
}

// Remove is idempotent.
func (s *BasketService) Remove(ctx context.Context, lineID int64) error {
	return s.baskets.DeleteLines(ctx, lineID)
}

// Clear is idempotent.
func (s *BasketService) Clear(ctx context.Context, customerID int64) error {
	return s.baskets.ClearBasket(ctx, customerID)
}

// Count returns the number of distinct lines, not the summed quantity.
func (s *BasketService) Count(ctx context.Context, customerID int64) (int, error) {
	return s.baskets.CountLines(ctx, customerID)
}

func (s *BasketService) checkStock(ctx context.Context, productID int64, requested int) error {
	product, err := s.ledger.Get(ctx, productID)
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}
	if product.Quantity < requested {
		return &domain.InsufficientStockError{ProductID: productID, Available: product.Quantity, Requested: requested}
	}
	return nil
}
