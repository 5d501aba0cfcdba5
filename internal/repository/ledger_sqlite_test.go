package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"instantin-core-api/internal/model"
	"instantin-core-api/pkg/uid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func newCountedProduct(t *testing.T, l *SQLiteLedger, available int) *model.Product {
	t.Helper()
	p := &model.Product{
		ID:           uid.New(),
		StorefrontID: "store-1",
		Name:         "limited print",
		Price:        2500,
		StockPolicy:  model.StockCounted,
		Available:    available,
	}
	require.NoError(t, l.CreateProduct(context.Background(), p))
	return p
}

func TestReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	p := newCountedProduct(t, l, 3)

	r, err := l.Reserve(ctx, p.ID, "order-1", 2)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationActive, r.Status)

	got, err := l.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Reserved)
	assert.Equal(t, 3, got.Available)

	// only one unreserved unit left
	_, err = l.Reserve(ctx, p.ID, "order-2", 2)
	assert.ErrorIs(t, err, model.ErrInsufficientStock)

	require.NoError(t, l.ReleaseReservation(ctx, r.ID))
	got, err = l.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Reserved)

	// release is idempotent
	require.NoError(t, l.ReleaseReservation(ctx, r.ID))
	got, err = l.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Reserved)
}

func TestReserveUnknownProduct(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Reserve(context.Background(), "missing", "order-1", 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCommitDeductsOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	p := newCountedProduct(t, l, 5)

	r, err := l.Reserve(ctx, p.ID, "order-1", 2)
	require.NoError(t, err)

	require.NoError(t, l.CommitReservation(ctx, r.ID))
	// committing again must not deduct twice
	require.NoError(t, l.CommitReservation(ctx, r.ID))

	got, err := l.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Available)
	assert.Equal(t, 0, got.Reserved)

	// releasing a committed reservation is a no-op, not a restock
	require.NoError(t, l.ReleaseReservation(ctx, r.ID))
	got, err = l.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Available)
}

func TestSoldOutFlipAndRevert(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	p := newCountedProduct(t, l, 1)

	r, err := l.Reserve(ctx, p.ID, "order-1", 1)
	require.NoError(t, err)

	got, err := l.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductSoldOut, got.Status)

	require.NoError(t, l.ReleaseReservation(ctx, r.ID))
	got, err = l.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductActive, got.Status)
}

func TestConcurrentReserveLastUnit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	p := newCountedProduct(t, l, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, p.ID, uid.New(), 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, model.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one of two racing reserves wins the last unit")
}

func TestUnlimitedProductNeverRunsOut(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	p := &model.Product{
		ID:           uid.New(),
		StorefrontID: "store-1",
		Name:         "digital download",
		Price:        900,
		StockPolicy:  model.StockUnlimited,
	}
	require.NoError(t, l.CreateProduct(ctx, p))

	for i := 0; i < 5; i++ {
		_, err := l.Reserve(ctx, p.ID, uid.New(), 100)
		require.NoError(t, err)
	}
	got, err := l.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductActive, got.Status)
}

func TestOrderOptimisticLock(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	o := &model.Order{
		ID:           uid.New(),
		StorefrontID: "store-1",
		Currency:     "USD",
		Status:       model.OrderDraft,
		Total:        1000,
		Items: []model.OrderItem{
			{ProductID: "p1", ProductName: "print", UnitPrice: 1000, Quantity: 1, LineTotal: 1000},
		},
	}
	require.NoError(t, l.CreateOrder(ctx, o))
	assert.Equal(t, 1, o.Version)

	loaded, err := l.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)

	// two writers load version 1; the second write loses
	stale, err := l.GetOrder(ctx, o.ID)
	require.NoError(t, err)

	loaded.Status = model.OrderPending
	require.NoError(t, l.UpdateOrder(ctx, loaded))
	assert.Equal(t, 2, loaded.Version)

	stale.Status = model.OrderCancelled
	assert.ErrorIs(t, l.UpdateOrder(ctx, stale), ErrOptimisticLock)
}

func TestPlatformFeesBetween(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	paidAt := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	for _, fee := range []model.Cents{300, 700} {
		o := &model.Order{
			ID:           uid.New(),
			StorefrontID: "store-1",
			Currency:     "USD",
			Status:       model.OrderProcessing,
			PlatformFee:  fee,
			PaidAt:       &paidAt,
		}
		require.NoError(t, l.CreateOrder(ctx, o))
		require.NoError(t, l.UpdateOrder(ctx, o))
	}

	// an order outside the window
	outside := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	o := &model.Order{
		ID: uid.New(), StorefrontID: "store-1", Currency: "USD",
		Status: model.OrderProcessing, PlatformFee: 999, PaidAt: &outside,
	}
	require.NoError(t, l.CreateOrder(ctx, o))
	require.NoError(t, l.UpdateOrder(ctx, o))

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	fees, err := l.PlatformFeesBetween(ctx, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, model.Cents(1000), fees)
}

func TestAddParticipantUniqueness(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	d := &model.Drop{ID: uid.New(), Name: "collab", CreatorID: "creator", Policy: model.SplitEqual}
	require.NoError(t, l.CreateDrop(ctx, d))

	p := &model.DropParticipant{ID: uid.New(), DropID: d.ID, UserID: "u1", Status: model.ParticipantActive}
	require.NoError(t, l.AddParticipant(ctx, p))

	dup := &model.DropParticipant{ID: uid.New(), DropID: d.ID, UserID: "u1", Status: model.ParticipantActive}
	assert.ErrorIs(t, l.AddParticipant(ctx, dup), model.ErrDuplicateParticipant)

	// a removed row frees the slot
	p.Status = model.ParticipantRemoved
	require.NoError(t, l.UpdateParticipant(ctx, p))
	again := &model.DropParticipant{ID: uid.New(), DropID: d.ID, UserID: "u1", Status: model.ParticipantActive}
	require.NoError(t, l.AddParticipant(ctx, again))
}

func TestRecordDistributionIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	d := &model.Drop{ID: uid.New(), Name: "collab", CreatorID: "creator", Policy: model.SplitRevenueShare}
	require.NoError(t, l.CreateDrop(ctx, d))
	p := &model.DropParticipant{ID: uid.New(), DropID: d.ID, UserID: "u1", Status: model.ParticipantActive, Share: 4900}
	require.NoError(t, l.AddParticipant(ctx, p))

	rows := []DistributionRow{
		{RecipientType: "creator", RecipientID: "creator", UserID: "creator", Amount: 5000},
		{RecipientType: "participant", RecipientID: p.ID, UserID: "u1", Amount: 4900},
		{RecipientType: "platform", RecipientID: "platform", Amount: 100},
	}
	require.NoError(t, l.RecordDistribution(ctx, d.ID, "order-1", 10000, rows))
	require.NoError(t, l.RecordDistribution(ctx, d.ID, "order-1", 10000, rows))

	participants, err := l.Participants(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, model.Cents(4900), participants[0].Earned)

	got, err := l.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(10000), got.TotalSales)
	assert.Equal(t, 1, got.TotalOrders)
}

func newActiveRaffle(t *testing.T, l *SQLiteLedger) *model.Raffle {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := &model.Raffle{
		ID: uid.New(), Month: 8, Year: 2026, WinnerCount: 10,
		StartAt: start, EndAt: start.AddDate(0, 1, 0), DrawAt: start.AddDate(0, 1, 0),
	}
	require.NoError(t, l.CreateRaffle(ctx, r))
	require.NoError(t, l.TransitionRaffle(ctx, r.ID, model.RaffleUpcoming, model.RaffleActive))
	return r
}

func TestAddTicketsDeduplicates(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r := newActiveRaffle(t, l)

	issued, err := l.AddTickets(ctx, r.ID, "owner-1", "visit:store:alice", model.TicketVisit, 1)
	require.NoError(t, err)
	assert.True(t, issued)

	// same visitor, same period: nothing issued
	issued, err = l.AddTickets(ctx, r.ID, "owner-1", "visit:store:alice", model.TicketVisit, 1)
	require.NoError(t, err)
	assert.False(t, issued)

	// a different source under the same key is a separate event
	issued, err = l.AddTickets(ctx, r.ID, "owner-1", "ref:bob", model.TicketReferral, 5)
	require.NoError(t, err)
	assert.True(t, issued)

	entries, err := l.Entries(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].BaseTickets)
	assert.Equal(t, 5, entries[0].ReferralTickets)
	assert.Equal(t, 6, entries[0].TotalTickets())

	got, err := l.GetRaffle(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.TotalTickets)
	assert.Equal(t, 1, got.TotalEntries)
}

func TestAddTicketsRejectedMidDraw(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r := newActiveRaffle(t, l)

	require.NoError(t, l.TransitionRaffle(ctx, r.ID, model.RaffleActive, model.RaffleDrawing))

	_, err := l.AddTickets(ctx, r.ID, "owner-1", "visit:store:late", model.TicketVisit, 1)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestMarkWinnersCompletesRaffle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r := newActiveRaffle(t, l)

	_, err := l.AddTickets(ctx, r.ID, "owner-1", "visit:1", model.TicketVisit, 3)
	require.NoError(t, err)
	entries, err := l.Entries(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// winners can only be recorded from drawing
	winners := []model.Winner{{UserID: "owner-1", EntryID: entries[0].ID, Place: 1, Tickets: 3, PrizeAmount: 50000}}
	assert.ErrorIs(t, l.MarkWinners(ctx, r.ID, winners), model.ErrInvalidTransition)

	require.NoError(t, l.TransitionRaffle(ctx, r.ID, model.RaffleActive, model.RaffleDrawing))
	require.NoError(t, l.MarkWinners(ctx, r.ID, winners))

	got, err := l.GetRaffle(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RaffleCompleted, got.Status)

	entries, err = l.Entries(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, entries[0].IsWinner)
	assert.Equal(t, model.Cents(50000), entries[0].PrizeAmount)

	// prize claim requires a winning entry
	require.NoError(t, l.ClaimPrize(ctx, entries[0].ID))
}

func TestTransitionRaffleCAS(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r := newActiveRaffle(t, l)

	require.NoError(t, l.TransitionRaffle(ctx, r.ID, model.RaffleActive, model.RaffleDrawing))
	// the losing CAS sees the moved status
	assert.ErrorIs(t, l.TransitionRaffle(ctx, r.ID, model.RaffleActive, model.RaffleDrawing), model.ErrInvalidTransition)
	assert.ErrorIs(t, l.TransitionRaffle(ctx, "missing", model.RaffleActive, model.RaffleDrawing), model.ErrNotFound)
}
