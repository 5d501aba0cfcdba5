package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidOrder(t *testing.T) *Order {
	t.Helper()
	now := time.Now().UTC()
	o := &Order{
		Status: OrderDraft,
		Items: []OrderItem{
			{UnitPrice: 2500, Quantity: 2},
			{UnitPrice: 1000, Quantity: 1},
		},
		Tax:      300,
		Shipping: 500,
		Discount: 100,
	}
	o.RecomputeTotals()
	require.NoError(t, o.Submit(now))
	require.NoError(t, o.ConfirmPayment("pay_123", now))
	return o
}

func TestRecomputeTotals(t *testing.T) {
	o := &Order{
		Items: []OrderItem{
			{UnitPrice: 2500, Quantity: 2},
			{UnitPrice: 1000, Quantity: 1},
		},
		Tax:      300,
		Shipping: 500,
		Discount: 100,
	}
	o.RecomputeTotals()

	assert.Equal(t, Cents(6000), o.Subtotal)
	assert.Equal(t, Cents(6700), o.Total)
	assert.Equal(t, Cents(5000), o.Items[0].LineTotal)
}

func TestOrderHappyPath(t *testing.T) {
	now := time.Now().UTC()
	o := paidOrder(t)
	assert.Equal(t, OrderProcessing, o.Status)
	assert.Equal(t, "pay_123", o.PaymentRef)
	assert.NotNil(t, o.PaidAt)

	require.NoError(t, o.MarkShipped("track_9", now))
	assert.Equal(t, OrderShipped, o.Status)

	require.NoError(t, o.MarkDelivered(now))
	assert.Equal(t, OrderDelivered, o.Status)
}

func TestOrderInvalidEdges(t *testing.T) {
	now := time.Now().UTC()

	o := &Order{Status: OrderDraft}
	assert.ErrorIs(t, o.ConfirmPayment("pay", now), ErrInvalidTransition)
	assert.ErrorIs(t, o.MarkShipped("t", now), ErrInvalidTransition)
	assert.ErrorIs(t, o.MarkDelivered(now), ErrInvalidTransition)

	// cancel from shipped always fails
	shipped := paidOrder(t)
	require.NoError(t, shipped.MarkShipped("t", now))
	assert.ErrorIs(t, shipped.Cancel("late regret", now), ErrInvalidTransition)

	// submitting twice fails
	o2 := &Order{Status: OrderDraft}
	require.NoError(t, o2.Submit(now))
	assert.ErrorIs(t, o2.Submit(now), ErrInvalidTransition)
}

func TestOrderCancelReleasesStates(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []OrderStatus{OrderDraft, OrderPending, OrderProcessing} {
		o := &Order{Status: status}
		require.NoError(t, o.Cancel("changed mind", now), "cancel from %s", status)
		assert.Equal(t, OrderCancelled, o.Status)
		assert.NotNil(t, o.ClosedAt)
	}
}

func TestFlaggedOrderIsHeld(t *testing.T) {
	now := time.Now().UTC()
	o := &Order{Status: OrderDraft}
	require.NoError(t, o.Submit(now))
	o.FlagForReview(0.93)

	assert.ErrorIs(t, o.ConfirmPayment("pay", now), ErrOrderHeld)
	assert.Equal(t, OrderPending, o.Status)

	o.ApproveAfterReview()
	require.NoError(t, o.ConfirmPayment("pay", now))
	assert.Equal(t, OrderProcessing, o.Status)

	// the hold blocks every forward edge, including late flags in transit
	require.NoError(t, o.MarkShipped("track", now))
	o.FlagForReview(0.88)
	assert.ErrorIs(t, o.MarkDelivered(now), ErrOrderHeld)
	assert.Equal(t, OrderShipped, o.Status)

	o.ApproveAfterReview()
	require.NoError(t, o.MarkDelivered(now))
	assert.Equal(t, OrderDelivered, o.Status)

	// a flagged draft cannot even be submitted
	held := &Order{Status: OrderDraft}
	held.FlagForReview(0.99)
	assert.ErrorIs(t, held.Submit(now), ErrOrderHeld)
}

func TestRefund(t *testing.T) {
	now := time.Now().UTC()

	o := paidOrder(t)
	total := o.Total

	// partial refund keeps the state
	require.NoError(t, o.Refund(1000, "damaged item", now))
	assert.Equal(t, OrderProcessing, o.Status)
	assert.Equal(t, total-1000, o.SettledTotal())

	// over-refund is rejected
	assert.ErrorIs(t, o.Refund(total, "too much", now), ErrInvalidTransition)

	// refunding up to the total closes the order
	require.NoError(t, o.Refund(total-1000, "full return", now))
	assert.Equal(t, OrderRefunded, o.Status)
	assert.Equal(t, Cents(0), o.SettledTotal())

	// no refunds before payment
	draft := &Order{Status: OrderDraft, Total: 1000}
	assert.ErrorIs(t, draft.Refund(100, "nope", now), ErrInvalidTransition)
}

func TestCentsDisplay(t *testing.T) {
	assert.Equal(t, "$100.01", Cents(10001).Display())
	assert.Equal(t, "$0.05", Cents(5).Display())
	assert.Equal(t, "-$3.50", Cents(-350).Display())
}

func TestBasisPoints(t *testing.T) {
	assert.Equal(t, Cents(500), BasisPoints(500).ApplyTo(10000))
	// truncation, never rounding up
	assert.Equal(t, Cents(33), BasisPoints(3333).ApplyTo(100))
	assert.Equal(t, "19.5%", BasisPoints(1950).Percent())
	assert.Equal(t, "50%", BasisPoints(5000).Percent())
}
