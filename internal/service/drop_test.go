package service

import (
	"context"
	"testing"
	"time"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDropRepo is an in-memory DropRepository for service-level tests.
type fakeDropRepo struct {
	drops        map[string]*model.Drop
	participants map[string][]*model.DropParticipant
	distributed  map[string][]repository.DistributionRow // keyed by order id
}

func newFakeDropRepo() *fakeDropRepo {
	return &fakeDropRepo{
		drops:        make(map[string]*model.Drop),
		participants: make(map[string][]*model.DropParticipant),
		distributed:  make(map[string][]repository.DistributionRow),
	}
}

func (f *fakeDropRepo) CreateDrop(_ context.Context, d *model.Drop) error {
	cp := *d
	f.drops[d.ID] = &cp
	return nil
}

func (f *fakeDropRepo) GetDrop(_ context.Context, id string) (*model.Drop, error) {
	d, ok := f.drops[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDropRepo) UpdateDrop(_ context.Context, d *model.Drop) error {
	if _, ok := f.drops[d.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *d
	cp.Version++
	f.drops[d.ID] = &cp
	d.Version++
	return nil
}

func (f *fakeDropRepo) AddParticipant(_ context.Context, p *model.DropParticipant) error {
	for _, existing := range f.participants[p.DropID] {
		if existing.UserID == p.UserID && existing.Status.Counted() {
			return model.ErrDuplicateParticipant
		}
	}
	cp := *p
	f.participants[p.DropID] = append(f.participants[p.DropID], &cp)
	return nil
}

func (f *fakeDropRepo) Participants(_ context.Context, dropID string) ([]model.DropParticipant, error) {
	out := make([]model.DropParticipant, 0, len(f.participants[dropID]))
	for _, p := range f.participants[dropID] {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeDropRepo) UpdateParticipant(_ context.Context, p *model.DropParticipant) error {
	for _, list := range f.participants {
		for _, existing := range list {
			if existing.ID == p.ID {
				*existing = *p
				return nil
			}
		}
	}
	return model.ErrNotFound
}

func (f *fakeDropRepo) RecordDistribution(_ context.Context, dropID, orderID string, total model.Cents, rows []repository.DistributionRow) error {
	if _, done := f.distributed[orderID]; done {
		return nil
	}
	f.distributed[orderID] = rows
	for _, r := range rows {
		if r.RecipientType != "participant" {
			continue
		}
		for _, p := range f.participants[dropID] {
			if p.ID == r.RecipientID {
				p.Earned += r.Amount
			}
		}
	}
	d := f.drops[dropID]
	d.TotalSales += total
	d.TotalOrders++
	return nil
}

var _ repository.DropRepository = (*fakeDropRepo)(nil)

func newTestDrop(t *testing.T, svc *DropService, policy model.SplitPolicy) *model.Drop {
	t.Helper()
	d := &model.Drop{
		Name:         "summer-collab",
		CreatorID:    "creator",
		Policy:       policy,
		CreatorShare: 5000,
		PlatformFee:  100,
	}
	require.NoError(t, svc.CreateDrop(context.Background(), d))
	return d
}

func TestActivateValidatesSplit(t *testing.T) {
	ctx := context.Background()
	repo := newFakeDropRepo()
	svc := NewDropService(repo, nil)

	d := newTestDrop(t, svc, model.SplitRevenueShare)

	// no participants yet
	assert.ErrorIs(t, svc.Activate(ctx, d.ID), model.ErrSplitConfiguration)

	// shares totalling 95% are rejected
	require.NoError(t, svc.Admit(ctx, d.ID, "u1", 4400, 0))
	assert.ErrorIs(t, svc.Activate(ctx, d.ID), model.ErrSplitConfiguration)

	// topping up to exactly 100% activates
	require.NoError(t, svc.Admit(ctx, d.ID, "u2", 500, 0))
	require.NoError(t, svc.Activate(ctx, d.ID))

	got, _, err := svc.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DropActive, got.Status)
	assert.NotNil(t, got.LaunchedAt)

	// activating twice is an invalid edge
	assert.ErrorIs(t, svc.Activate(ctx, d.ID), model.ErrInvalidTransition)
}

func TestAdmitGuards(t *testing.T) {
	ctx := context.Background()
	repo := newFakeDropRepo()
	svc := NewDropService(repo, nil)

	d := &model.Drop{
		Name:            "tiny-collab",
		CreatorID:       "creator",
		Policy:          model.SplitEqual,
		MaxParticipants: 2,
	}
	require.NoError(t, svc.CreateDrop(ctx, d))

	require.NoError(t, svc.Admit(ctx, d.ID, "u1", 0, 0))
	assert.ErrorIs(t, svc.Admit(ctx, d.ID, "u1", 0, 0), model.ErrDuplicateParticipant)

	require.NoError(t, svc.Admit(ctx, d.ID, "u2", 0, 0))
	assert.ErrorIs(t, svc.Admit(ctx, d.ID, "u3", 0, 0), model.ErrCapacityExceeded)

	// a removed participant frees the slot
	participants, err := svc.drops.Participants(ctx, d.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveParticipant(ctx, d.ID, participants[0].ID))
	require.NoError(t, svc.Admit(ctx, d.ID, "u3", 0, 0))
}

func TestInviteOnlyAdmission(t *testing.T) {
	ctx := context.Background()
	repo := newFakeDropRepo()
	svc := NewDropService(repo, nil)

	d := &model.Drop{
		Name:       "closed-collab",
		CreatorID:  "creator",
		Policy:     model.SplitEqual,
		InviteOnly: true,
	}
	require.NoError(t, svc.CreateDrop(ctx, d))

	// walk-ins are rejected
	assert.Error(t, svc.Admit(ctx, d.ID, "stranger", 0, 0))

	// an invited user converts in place
	require.NoError(t, svc.Invite(ctx, d.ID, "guest", 2000, 0))
	require.NoError(t, svc.Admit(ctx, d.ID, "guest", 0, 0))

	participants, err := svc.drops.Participants(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, model.ParticipantActive, participants[0].Status)
	assert.Equal(t, model.BasisPoints(2000), participants[0].Share)
}

func TestEndCompletesParticipants(t *testing.T) {
	ctx := context.Background()
	repo := newFakeDropRepo()
	svc := NewDropService(repo, nil)

	d := newTestDrop(t, svc, model.SplitRevenueShare)
	require.NoError(t, svc.Admit(ctx, d.ID, "u1", 4900, 0))
	require.NoError(t, svc.Activate(ctx, d.ID))

	// ending from draft is invalid; only active/paused drops end
	other := newTestDrop(t, svc, model.SplitEqual)
	assert.ErrorIs(t, svc.End(ctx, other.ID), model.ErrInvalidTransition)

	require.NoError(t, svc.End(ctx, d.ID))

	got, participants, err := svc.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DropEnded, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.Len(t, participants, 1)
	assert.Equal(t, model.ParticipantCompleted, participants[0].Status)

	// terminal drops reject further transitions
	assert.ErrorIs(t, svc.Cancel(ctx, d.ID), model.ErrInvalidTransition)
}

func TestCancelRemovesParticipants(t *testing.T) {
	ctx := context.Background()
	repo := newFakeDropRepo()
	svc := NewDropService(repo, nil)

	d := newTestDrop(t, svc, model.SplitRevenueShare)
	require.NoError(t, svc.Admit(ctx, d.ID, "u1", 4900, 0))
	require.NoError(t, svc.Cancel(ctx, d.ID))

	got, participants, err := svc.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DropCancelled, got.Status)
	require.Len(t, participants, 1)
	assert.Equal(t, model.ParticipantRemoved, participants[0].Status)
}

func TestDistributeOrderIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newFakeDropRepo()
	svc := NewDropService(repo, nil)

	d := newTestDrop(t, svc, model.SplitRevenueShare)
	require.NoError(t, svc.Admit(ctx, d.ID, "u1", 4900, 0))
	require.NoError(t, svc.Activate(ctx, d.ID))

	now := time.Now().UTC()
	o := &model.Order{
		ID:     "order-1",
		DropID: d.ID,
		Status: model.OrderProcessing,
		Total:  10000,
		PaidAt: &now,
	}

	rows, err := svc.DistributeOrder(ctx, o)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	// a settlement retry must not double-credit
	_, err = svc.DistributeOrder(ctx, o)
	require.NoError(t, err)

	_, participants, err := svc.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, model.Cents(4900), participants[0].Earned)

	got, _, err := svc.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(10000), got.TotalSales)
	assert.Equal(t, 1, got.TotalOrders)
}
