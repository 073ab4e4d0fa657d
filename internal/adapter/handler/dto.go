package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

type AddressDTO struct {
	ID       int64  `json:"id,omitempty"`
	Street   string `json:"street"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Province string `json:"province"`
}

func (a AddressDTO) toDomain() domain.Address {
	return domain.Address{Street: a.Street, Zip: a.Zip, Country: a.Country, Province: a.Province}
}

func addressDTO(a domain.Address) AddressDTO {
	return AddressDTO{ID: a.ID, Street: a.Street, Zip: a.Zip, Country: a.Country, Province: a.Province}
}

type LineDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CreateOrderRequest places an authenticated order when UserID is set and a
// guest order otherwise.
type CreateOrderRequest struct {
	UserID         *int64     `json:"user_id,omitempty"`
	Email          string     `json:"email,omitempty"`
	Address        AddressDTO `json:"address"`
	Items          []LineDTO  `json:"items,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
}

func (r CreateOrderRequest) checkout() domain.Checkout {
	if r.UserID != nil {
		return domain.AuthenticatedCheckout{CustomerID: *r.UserID, Address: r.Address.toDomain()}
	}

	lines := make([]domain.LineRequest, 0, len(r.Items))
	for _, it := range r.Items {
		lines = append(lines, domain.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return domain.GuestCheckout{Email: r.Email, Address: r.Address.toDomain(), Lines: lines}
}

type OrderLineDTO struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderDTO struct {
	ID         string          `json:"id"`
	UserID     *int64          `json:"user_id,omitempty"`
	GuestEmail string          `json:"guest_email,omitempty"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	Address    AddressDTO      `json:"address"`
	Lines      []OrderLineDTO  `json:"lines"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func orderDTO(o domain.Order) OrderDTO {
	lines := make([]OrderLineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineDTO{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal(),
		})
	}
	return OrderDTO{
		ID:         o.ID,
		UserID:     o.CustomerID,
		GuestEmail: o.GuestEmail,
		Status:     string(o.Status),
		Total:      o.Total,
		Address:    addressDTO(o.Address),
		Lines:      lines,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func orderDTOs(orders []domain.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderDTO(o))
	}
	return out
}

type AddToBasketRequest struct {
	UserID    int64 `json:"user_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateBasketRequest struct {
	Quantity int `json:"quantity"`
}

type BasketLineDTO struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func basketLineDTO(l domain.BasketLine) BasketLineDTO {
	return BasketLineDTO{
		ID:        l.ID,
		UserID:    l.CustomerID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
