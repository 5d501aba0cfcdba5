package service

import (
	"context"
	"fmt"
	"log"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
	"instantin-core-api/pkg/uid"
)

// InventoryService fronts the ledger's product and reservation surface.
// All counter mutations happen inside the repository's transactions; this
// layer adds validation and logging.
type InventoryService struct {
	products repository.ProductRepository
}

// NewInventoryService creates a new inventory service.
// Returns nil if products is nil (required dependency).
func NewInventoryService(products repository.ProductRepository) *InventoryService {
	if products == nil {
		return nil
	}
	return &InventoryService{products: products}
}

// CreateProduct registers a sellable product.
func (s *InventoryService) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.Name == "" || p.StorefrontID == "" {
		return fmt.Errorf("product name and storefront are required")
	}
	if p.Price < 0 {
		return fmt.Errorf("product price must not be negative")
	}
	switch p.StockPolicy {
	case model.StockUnlimited:
		p.Available = 0
	case model.StockCounted:
		if p.Available < 0 {
			return fmt.Errorf("counted product needs non-negative stock")
		}
	default:
		return fmt.Errorf("unknown stock policy %q", p.StockPolicy)
	}
	if p.ID == "" {
		p.ID = uid.New()
	}
	return s.products.CreateProduct(ctx, p)
}

// GetProduct loads a product by id.
func (s *InventoryService) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return s.products.GetProduct(ctx, id)
}

// RetireProduct takes a product off sale. Open reservations still settle.
func (s *InventoryService) RetireProduct(ctx context.Context, id string) error {
	return s.products.RetireProduct(ctx, id)
}

// Reserve holds qty units for an order. On counted products the hold is
// atomic against concurrent reserves: when two buyers race for the last
// unit, exactly one succeeds and the other gets ErrInsufficientStock.
func (s *InventoryService) Reserve(ctx context.Context, productID, orderID string, qty int) (*model.Reservation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("reserve quantity must be positive")
	}
	r, err := s.products.Reserve(ctx, productID, orderID, qty)
	if err != nil {
		return nil, err
	}
	log.Printf("[InventoryService] Reserved %d x %s for order %s (reservation %s)", qty, productID, orderID, r.ID)
	return r, nil
}

// Commit converts a hold into a permanent deduction. Idempotent.
func (s *InventoryService) Commit(ctx context.Context, reservationID string) error {
	return s.products.CommitReservation(ctx, reservationID)
}

// Release returns held stock to the pool. Idempotent, including on
// already-committed reservations.
func (s *InventoryService) Release(ctx context.Context, reservationID string) error {
	return s.products.ReleaseReservation(ctx, reservationID)
}

// ReleaseOrder releases every still-active reservation held by an order.
// Used on cancel and payment failure.
func (s *InventoryService) ReleaseOrder(ctx context.Context, orderID string) error {
	reservations, err := s.products.ReservationsForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		if r.Status != model.ReservationActive {
			continue
		}
		if err := s.products.ReleaseReservation(ctx, r.ID); err != nil {
			return fmt.Errorf("failed to release reservation %s: %w", r.ID, err)
		}
	}
	return nil
}

// CommitOrder commits every active reservation held by an order. Called
// when payment is confirmed. Released rows are skipped: a line dropped
// before checkout must not block settling the rest of the order.
func (s *InventoryService) CommitOrder(ctx context.Context, orderID string) error {
	reservations, err := s.products.ReservationsForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		if r.Status == model.ReservationReleased {
			continue
		}
		if err := s.products.CommitReservation(ctx, r.ID); err != nil {
			return fmt.Errorf("failed to commit reservation %s: %w", r.ID, err)
		}
	}
	return nil
}
