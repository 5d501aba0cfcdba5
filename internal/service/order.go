package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"instantin-core-api/internal/event"
	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
	"instantin-core-api/pkg/uid"
)

// maxUpdateRetries bounds the reload-and-reapply loop around optimistic
// lock conflicts on order rows.
const maxUpdateRetries = 3

// OrderLine is one requested purchase in a new order.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// NewOrderInput describes an order to open.
type NewOrderInput struct {
	StorefrontID string      `json:"storefront_id"`
	BuyerEmail   string      `json:"buyer_email"`
	Currency     string      `json:"currency"`
	DropID       string      `json:"drop_id"`
	Lines        []OrderLine `json:"lines"`
	Tax          model.Cents `json:"tax"`
	Shipping     model.Cents `json:"shipping"`
	Discount     model.Cents `json:"discount"`
}

// OrderService drives the order state machine and its coupling to
// inventory, drops and the raffle. Order/inventory mutations are
// synchronous and transactional; the post-settlement side effects are
// at-least-once with logging, never blocking the order itself.
type OrderService struct {
	orders      repository.OrderRepository
	inventory   *InventoryService
	drops       *DropService
	raffles     *RaffleService
	publisher   event.Publisher
	platformFee model.BasisPoints
}

// NewOrderService creates a new order service.
// Returns nil if orders or inventory is nil. drops and raffles are
// optional; without them the corresponding side effects are skipped.
func NewOrderService(
	orders repository.OrderRepository,
	inventory *InventoryService,
	drops *DropService,
	raffles *RaffleService,
	publisher event.Publisher,
	platformFee model.BasisPoints,
) *OrderService {
	if orders == nil || inventory == nil {
		return nil
	}
	if publisher == nil {
		publisher = event.NewLogPublisher()
	}
	return &OrderService{
		orders:      orders,
		inventory:   inventory,
		drops:       drops,
		raffles:     raffles,
		publisher:   publisher,
		platformFee: platformFee,
	}
}

// Open creates a draft order and reserves stock for every line. If any
// reservation fails, the ones already taken are released and the order is
// not created.
func (s *OrderService) Open(ctx context.Context, in NewOrderInput) (*model.Order, error) {
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("order needs at least one line")
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}

	o := &model.Order{
		ID:           uid.New(),
		StorefrontID: in.StorefrontID,
		BuyerEmail:   in.BuyerEmail,
		Currency:     in.Currency,
		DropID:       in.DropID,
		Tax:          in.Tax,
		Shipping:     in.Shipping,
		Discount:     in.Discount,
		Status:       model.OrderDraft,
	}

	var held []string
	releaseHeld := func() {
		for _, id := range held {
			if err := s.inventory.Release(ctx, id); err != nil {
				log.Printf("[OrderService] Failed to release reservation %s after aborted open: %v", id, err)
			}
		}
	}

	for _, line := range in.Lines {
		p, err := s.inventory.GetProduct(ctx, line.ProductID)
		if err != nil {
			releaseHeld()
			return nil, err
		}
		r, err := s.inventory.Reserve(ctx, p.ID, o.ID, line.Quantity)
		if err != nil {
			releaseHeld()
			return nil, err
		}
		held = append(held, r.ID)
		o.Items = append(o.Items, model.OrderItem{
			ID:          uid.New(),
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    line.Quantity,
		})
	}

	o.RecomputeTotals()
	o.PlatformFee = s.platformFee.ApplyTo(o.Total)

	if err := s.orders.CreateOrder(ctx, o); err != nil {
		releaseHeld()
		return nil, err
	}
	log.Printf("[OrderService] Opened order %s - %s across %d items", o.ID, o.Total.Display(), len(o.Items))
	return o, nil
}

// Get loads an order.
func (s *OrderService) Get(ctx context.Context, id string) (*model.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

// withOrder applies fn to a freshly loaded order and persists it, retrying
// on optimistic lock conflicts. fn must be safe to reapply.
func (s *OrderService) withOrder(ctx context.Context, id string, fn func(*model.Order) error) (*model.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		o, err := s.orders.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(o); err != nil {
			return nil, err
		}
		if err := s.orders.UpdateOrder(ctx, o); err != nil {
			if errors.Is(err, repository.ErrOptimisticLock) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return o, nil
	}
	return nil, lastErr
}

// Submit moves a draft to pending.
func (s *OrderService) Submit(ctx context.Context, id string) (*model.Order, error) {
	return s.withOrder(ctx, id, func(o *model.Order) error {
		return o.Submit(time.Now().UTC())
	})
}

// ConfirmPayment settles a pending order: the state flips to processing,
// reservations become permanent deductions, and the settlement side
// effects (drop distribution, raffle tickets, payout event) fire.
func (s *OrderService) ConfirmPayment(ctx context.Context, id, paymentRef string) (*model.Order, error) {
	o, err := s.withOrder(ctx, id, func(o *model.Order) error {
		return o.ConfirmPayment(paymentRef, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	// The order is paid; a commit failure here is an operational problem
	// to retry, not grounds to unwind the payment.
	if err := s.inventory.CommitOrder(ctx, o.ID); err != nil {
		log.Printf("[OrderService] Failed to commit reservations for order %s: %v", o.ID, err)
	}

	s.settle(ctx, o)
	return o, nil
}

// settle runs the post-payment side effects. Each is independently
// idempotent, so a crash here is repaired by re-running settlement.
func (s *OrderService) settle(ctx context.Context, o *model.Order) {
	if s.drops != nil && o.DropID != "" {
		if rows, err := s.drops.DistributeOrder(ctx, o); err != nil {
			log.Printf("[OrderService] Distribution failed for order %s, will retry: %v", o.ID, err)
		} else {
			for _, row := range rows {
				if row.RecipientType == "platform" {
					continue
				}
				s.publisher.Publish(event.TopicPayoutScheduled, map[string]interface{}{
					"order_id":     o.ID,
					"drop_id":      o.DropID,
					"user_id":      row.UserID,
					"amount_cents": int64(row.Amount),
					"reason":       "drop_sale",
				})
			}
		}
	}

	if s.raffles != nil {
		if _, err := s.raffles.RecordSale(ctx, o); err != nil {
			log.Printf("[OrderService] Raffle sale tickets failed for order %s, will retry: %v", o.ID, err)
		}
	}
}

// Resettle re-runs the settlement side effects for an already-paid order.
// Safe to call repeatedly; used by the retry path.
func (s *OrderService) Resettle(ctx context.Context, id string) error {
	o, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	switch o.Status {
	case model.OrderProcessing, model.OrderShipped, model.OrderDelivered:
	default:
		return model.ErrInvalidTransition
	}
	s.settle(ctx, o)
	return nil
}

// Ship records shipment.
func (s *OrderService) Ship(ctx context.Context, id, tracking string) (*model.Order, error) {
	return s.withOrder(ctx, id, func(o *model.Order) error {
		return o.MarkShipped(tracking, time.Now().UTC())
	})
}

// Deliver records delivery.
func (s *OrderService) Deliver(ctx context.Context, id string) (*model.Order, error) {
	return s.withOrder(ctx, id, func(o *model.Order) error {
		return o.MarkDelivered(time.Now().UTC())
	})
}

// Cancel aborts an unshipped order and returns its held stock.
func (s *OrderService) Cancel(ctx context.Context, id, reason string) (*model.Order, error) {
	o, err := s.withOrder(ctx, id, func(o *model.Order) error {
		return o.Cancel(reason, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	if err := s.inventory.ReleaseOrder(ctx, o.ID); err != nil {
		log.Printf("[OrderService] Failed to release stock for cancelled order %s: %v", o.ID, err)
	}
	return o, nil
}

// Fail marks an unpaid order failed and returns its held stock.
func (s *OrderService) Fail(ctx context.Context, id, reason string) (*model.Order, error) {
	o, err := s.withOrder(ctx, id, func(o *model.Order) error {
		return o.Fail(reason, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	if err := s.inventory.ReleaseOrder(ctx, o.ID); err != nil {
		log.Printf("[OrderService] Failed to release stock for failed order %s: %v", o.ID, err)
	}
	return o, nil
}

// Refund records a partial or full refund. Already-recorded distributions
// are historical fact and are not clawed back; only future distributions
// see the reduced settled total.
func (s *OrderService) Refund(ctx context.Context, id string, amount model.Cents, reason string) (*model.Order, error) {
	return s.withOrder(ctx, id, func(o *model.Order) error {
		return o.Refund(amount, reason, time.Now().UTC())
	})
}

// Flag holds the order for manual review.
func (s *OrderService) Flag(ctx context.Context, id string, score float64) (*model.Order, error) {
	return s.withOrder(ctx, id, func(o *model.Order) error {
		o.FlagForReview(score)
		return nil
	})
}

// Approve lifts a review hold.
func (s *OrderService) Approve(ctx context.Context, id string) (*model.Order, error) {
	return s.withOrder(ctx, id, func(o *model.Order) error {
		o.ApproveAfterReview()
		return nil
	})
}
