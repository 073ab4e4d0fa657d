package domain

import (
	"net/mail"
	"strings"
)

// Address is a shipping address. Orders keep their own copy.
type Address struct {
	ID       int64
	Street   string
	Zip      string
	Country  string
	Province string
}

func (a Address) Validate() error {
	fields := []struct{ name, value string }{
		{"address.street", a.Street},
		{"address.zip", a.Zip},
		{"address.country", a.Country},
		{"address.province", a.Province},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Message: "is required"}
		}
	}
	return nil
}

// Snapshot returns a copy without identity so it is stored as a fresh row.
func (a Address) Snapshot() Address {
	a.ID = 0
	return a
}

// LineRequest is one explicitly supplied line of a guest checkout.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// Checkout selects where the line set of an order comes from. It is either
// AuthenticatedCheckout or GuestCheckout.
type Checkout interface {
	ShippingAddress() Address
	Validate() error
	checkout()
}

// AuthenticatedCheckout orders the current basket of a registered customer.
type AuthenticatedCheckout struct {
	CustomerID int64
	Address    Address
}

func (c AuthenticatedCheckout) ShippingAddress() Address { return c.Address }

func (c AuthenticatedCheckout) Validate() error {
	if c.CustomerID <= 0 {
		return &ValidationError{Field: "user_id", Message: "is required"}
	}
	return c.Address.Validate()
}

func (AuthenticatedCheckout) checkout() {}

// GuestCheckout orders an explicit line list for an unregistered buyer.
type GuestCheckout struct {
	Email   string
	Address Address
	Lines   []LineRequest
}

func (c GuestCheckout) ShippingAddress() Address { return c.Address }

func (c GuestCheckout) Validate() error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return &ValidationError{Field: "guest_email", Message: "is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &ValidationError{Field: "guest_email", Message: "is not a valid email address"}
	}
	if err := c.Address.Validate(); err != nil {
		return err
	}
	if len(c.Lines) == 0 {
		return &ValidationError{Field: "items", Message: "at least one item is required"}
	}
	for _, l := range c.Lines {
		if l.ProductID <= 0 {
			return &ValidationError{Field: "items.product_id", Message: "is required"}
		}
		if l.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

func (GuestCheckout) checkout() {}
