// Package commerce manages the item catalog and the order lifecycle.
package commerce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/agora-social/agora/internal/app/domain/commerce"
	"github.com/agora-social/agora/internal/app/storage"
	"github.com/agora-social/agora/pkg/logger"
)

var (
	// ErrLengthMismatch is returned when the item and quantity lists of an
	// order request do not pair up.
	ErrLengthMismatch = errors.New("items and quantities do not match")
	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrNotOpen is returned when completing or canceling an order that has
	// already reached a terminal status.
	ErrNotOpen = errors.New("order is not open")
)

// Service manages items and orders.
type Service struct {
	items  storage.ItemStore
	orders storage.OrderStore
	log    *logger.Logger
}

// New constructs a commerce service.
func New(items storage.ItemStore, orders storage.OrderStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("commerce")
	}
	return &Service{items: items, orders: orders, log: log}
}

// --- catalog ----------------------------------------------------------------

// ItemParams carries the item form fields.
type ItemParams struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Image       string
}

// CreateItem adds an item to the catalog.
func (s *Service) CreateItem(ctx context.Context, params ItemParams) (commerce.Item, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return commerce.Item{}, fmt.Errorf("name is required")
	}
	if params.Price.IsNegative() {
		return commerce.Item{}, fmt.Errorf("price must not be negative")
	}
	if params.Stock < 0 {
		return commerce.Item{}, fmt.Errorf("stock must not be negative")
	}

	created, err := s.items.CreateItem(ctx, commerce.Item{
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		Stock:       params.Stock,
		Image:       params.Image,
	})
	if err != nil {
		return commerce.Item{}, err
	}
	s.log.WithField("item_id", created.ID).Infof("item %s created", created.Name)
	return created, nil
}

// EditParams carries the optional fields of an item edit. Nil means keep the
// stored value.
type EditParams struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Image       *string
}

// UpdateItem applies a partial update to a catalog item.
func (s *Service) UpdateItem(ctx context.Context, id string, params EditParams) (commerce.Item, error) {
	existing, err := s.items.GetItem(ctx, id)
	if err != nil {
		return commerce.Item{}, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return commerce.Item{}, fmt.Errorf("name is required")
		}
		existing.Name = name
	}
	if params.Description != nil {
		existing.Description = *params.Description
	}
	if params.Image != nil {
		existing.Image = *params.Image
	}
	if params.Price != nil {
		if params.Price.IsNegative() {
			return commerce.Item{}, fmt.Errorf("price must not be negative")
		}
		existing.Price = *params.Price
	}
	if params.Stock != nil {
		if *params.Stock < 0 {
			return commerce.Item{}, fmt.Errorf("stock must not be negative")
		}
		existing.Stock = *params.Stock
	}

	updated, err := s.items.UpdateItem(ctx, existing)
	if err != nil {
		return commerce.Item{}, err
	}
	s.log.WithField("item_id", id).Info("item updated")
	return updated, nil
}

// GetItem retrieves a catalog item.
func (s *Service) GetItem(ctx context.Context, id string) (commerce.Item, error) {
	return s.items.GetItem(ctx, id)
}

// ListItems returns the whole catalog.
func (s *Service) ListItems(ctx context.Context) ([]commerce.Item, error) {
	return s.items.ListItems(ctx)
}

// --- orders -----------------------------------------------------------------

// CreateOrder places an order from parallel item and quantity lists. The two
// lists must have the same length and every quantity must be positive. The
// order and all of its lines are stored atomically: an unresolvable item
// aborts the whole order.
func (s *Service) CreateOrder(ctx context.Context, userID string, itemIDs []string, quantities []int) (commerce.Order, error) {
	if userID == "" {
		return commerce.Order{}, fmt.Errorf("user is required")
	}
	if len(itemIDs) != len(quantities) {
		return commerce.Order{}, ErrLengthMismatch
	}
	if len(itemIDs) == 0 {
		return commerce.Order{}, fmt.Errorf("order is empty")
	}

	lines := make([]commerce.OrderItem, 0, len(itemIDs))
	for i, itemID := range itemIDs {
		if quantities[i] < 1 {
			return commerce.Order{}, fmt.Errorf("%w: item %s", ErrInvalidQuantity, itemID)
		}
		lines = append(lines, commerce.OrderItem{ItemID: itemID, Quantity: quantities[i]})
	}

	created, err := s.orders.CreateOrder(ctx, commerce.Order{UserID: userID, Status: commerce.StatusOpen}, lines)
	if err != nil {
		return commerce.Order{}, err
	}
	s.log.WithFields(map[string]any{"order_id": created.ID, "lines": len(lines)}).Info("order placed")
	return created, nil
}

// OrderDetail is an order with its resolved lines and computed totals.
type OrderDetail struct {
	Order commerce.Order
	Lines []commerce.Line
	Total decimal.Decimal
}

// GetOrder loads an order detail scoped to its owner. Orders belonging to
// other users are reported as not found.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (OrderDetail, error) {
	order, err := s.orders.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return OrderDetail{}, err
	}

	lines, err := s.orders.ListOrderLines(ctx, orderID)
	if err != nil {
		return OrderDetail{}, err
	}

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return OrderDetail{Order: order, Lines: lines, Total: total}, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]commerce.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

// CompleteOrder marks an open order as completed.
func (s *Service) CompleteOrder(ctx context.Context, orderID, userID string) (commerce.Order, error) {
	return s.transition(ctx, orderID, userID, commerce.StatusCompleted)
}

// CancelOrder marks an open order as canceled.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID string) (commerce.Order, error) {
	return s.transition(ctx, orderID, userID, commerce.StatusCanceled)
}

// transition enforces the order lifecycle: open orders may move to exactly
// one terminal status, terminal orders never move again.
func (s *Service) transition(ctx context.Context, orderID, userID string, target commerce.Status) (commerce.Order, error) {
	order, err := s.orders.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return commerce.Order{}, err
	}
	if order.Status != commerce.StatusOpen {
		return commerce.Order{}, fmt.Errorf("%w: %s", ErrNotOpen, order.Status)
	}

	updated, err := s.orders.UpdateOrderStatus(ctx, orderID, target)
	if err != nil {
		return commerce.Order{}, err
	}
	s.log.WithFields(map[string]any{"order_id": orderID, "status": string(target)}).Info("order transitioned")
	return updated, nil
}
