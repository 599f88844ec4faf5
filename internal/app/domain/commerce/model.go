// Package commerce holds the catalog and order model.
package commerce

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a shared catalog entry. Price is a fixed-point amount with two
// fractional digits; it must never be negative.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Image       string
	CreatedAt   time.Time
}

// Status is the order lifecycle state. Completed and canceled are terminal
// and mutually exclusive; only open orders transition.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Order is a purchase by one account, composed of order lines.
type Order struct {
	ID        string
	UserID    string
	Status    Status
	CreatedAt time.Time
}

// Completed mirrors the legacy is_completed flag, derived from Status.
func (o Order) Completed() bool { return o.Status == StatusCompleted }

// Canceled mirrors the legacy is_canceled flag, derived from Status.
func (o Order) Canceled() bool { return o.Status == StatusCanceled }

// OrderItem associates an order with one catalog item and a quantity of at
// least one.
type OrderItem struct {
	ID       string
	OrderID  string
	ItemID   string
	Quantity int
}

// Line is an order line joined with its catalog item, as rendered on order
// detail views.
type Line struct {
	Item     Item
	Quantity int
}

// Subtotal is the line price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Item.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
