package model

import "time"

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
	OrderFailed     OrderStatus = "failed"
)

// Order is one purchase attempt against a storefront. Totals are always
// recomputed from the line items plus tax/shipping/discount; they are never
// hand-edited after creation except through the transition methods below.
type Order struct {
	ID           string      `json:"id"`
	StorefrontID string      `json:"storefront_id"`
	BuyerEmail   string      `json:"buyer_email"`
	Currency     string      `json:"currency"`
	DropID       string      `json:"drop_id,omitempty"`

	Subtotal    Cents `json:"subtotal"`
	Tax         Cents `json:"tax"`
	Shipping    Cents `json:"shipping"`
	Discount    Cents `json:"discount"`
	PlatformFee Cents `json:"platform_fee"`
	Total       Cents `json:"total"`
	Refunded    Cents `json:"refunded"`

	Status       OrderStatus `json:"status"`
	PaymentRef   string      `json:"payment_ref,omitempty"`
	TrackingRef  string      `json:"tracking_ref,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	RefundReason string      `json:"refund_reason,omitempty"`

	Flagged   bool    `json:"flagged"`
	RiskScore float64 `json:"risk_score,omitempty"`

	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	Items []OrderItem `json:"items,omitempty"`
}

// OrderItem snapshots the product at purchase time so later product edits
// never retroactively alter historical orders. Append-only once the parent
// order leaves draft.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   Cents  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	LineTotal   Cents  `json:"line_total"`
}

// RecomputeTotals rebuilds the subtotal and total from the line items.
// Total = subtotal + tax + shipping - discount.
func (o *Order) RecomputeTotals() {
	var sub Cents
	for i := range o.Items {
		o.Items[i].LineTotal = o.Items[i].UnitPrice * Cents(o.Items[i].Quantity)
		sub += o.Items[i].LineTotal
	}
	o.Subtotal = sub
	o.Total = o.Subtotal + o.Tax + o.Shipping - o.Discount
}

// SettledTotal is the order total net of refunds recorded so far. This is
// the amount a drop distribution is computed over.
func (o *Order) SettledTotal() Cents {
	return o.Total - o.Refunded
}

// Submit moves a draft into pending, awaiting payment confirmation.
func (o *Order) Submit(now time.Time) error {
	if o.Status != OrderDraft {
		return ErrInvalidTransition
	}
	if o.Flagged {
		return ErrOrderHeld
	}
	o.Status = OrderPending
	o.SubmittedAt = &now
	return nil
}

// ConfirmPayment moves pending into processing. Flagged orders stay held
// until reviewed; everything else fails with ErrInvalidTransition.
func (o *Order) ConfirmPayment(paymentRef string, now time.Time) error {
	if o.Status != OrderPending {
		return ErrInvalidTransition
	}
	if o.Flagged {
		return ErrOrderHeld
	}
	o.Status = OrderProcessing
	o.PaymentRef = paymentRef
	o.PaidAt = &now
	return nil
}

// MarkShipped is valid only from processing.
func (o *Order) MarkShipped(tracking string, now time.Time) error {
	if o.Status != OrderProcessing {
		return ErrInvalidTransition
	}
	if o.Flagged {
		return ErrOrderHeld
	}
	o.Status = OrderShipped
	o.TrackingRef = tracking
	o.ShippedAt = &now
	return nil
}

// MarkDelivered is valid only from shipped. A review hold placed while the
// order was in transit still blocks this edge.
func (o *Order) MarkDelivered(now time.Time) error {
	if o.Status != OrderShipped {
		return ErrInvalidTransition
	}
	if o.Flagged {
		return ErrOrderHeld
	}
	o.Status = OrderDelivered
	o.DeliveredAt = &now
	return nil
}

// Cancel is valid before shipment. Inventory release is the service's job;
// the model only guards the edge.
func (o *Order) Cancel(reason string, now time.Time) error {
	switch o.Status {
	case OrderDraft, OrderPending, OrderProcessing:
		o.Status = OrderCancelled
		o.CancelReason = reason
		o.ClosedAt = &now
		return nil
	}
	return ErrInvalidTransition
}

// Fail marks a pending order as failed (payment declined and abandoned).
func (o *Order) Fail(reason string, now time.Time) error {
	if o.Status != OrderPending && o.Status != OrderDraft {
		return ErrInvalidTransition
	}
	o.Status = OrderFailed
	o.CancelReason = reason
	o.ClosedAt = &now
	return nil
}

// Refund records a partial or full refund. Valid once the order is paid;
// it never reverses the inventory commit. A full refund moves the order to
// refunded; a partial refund keeps the current state.
func (o *Order) Refund(amount Cents, reason string, now time.Time) error {
	switch o.Status {
	case OrderProcessing, OrderShipped, OrderDelivered:
	default:
		return ErrInvalidTransition
	}
	if amount <= 0 || o.Refunded+amount > o.Total {
		return ErrInvalidTransition
	}
	o.Refunded += amount
	o.RefundReason = reason
	if o.Refunded == o.Total {
		o.Status = OrderRefunded
		o.ClosedAt = &now
	}
	return nil
}

// FlagForReview holds the order: no forward transition until approved.
// Orthogonal to the main lifecycle.
func (o *Order) FlagForReview(score float64) {
	o.Flagged = true
	o.RiskScore = score
}

// ApproveAfterReview lifts the review hold.
func (o *Order) ApproveAfterReview() {
	o.Flagged = false
}
