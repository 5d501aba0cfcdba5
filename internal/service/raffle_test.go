package service

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, userID string, base int) model.RaffleEntry {
	return model.RaffleEntry{ID: id, UserID: userID, BaseTickets: base}
}

func TestComputePrizePool(t *testing.T) {
	// $8,000 in fees: 5% = $400, floored up to $500
	assert.Equal(t, model.Cents(50000), ComputePrizePool(800000))
	// $20,000 in fees: 5% = $1,000
	assert.Equal(t, model.Cents(100000), ComputePrizePool(2000000))
	// exactly at the $10,000 tipping point
	assert.Equal(t, model.Cents(50000), ComputePrizePool(1000000))
	assert.Equal(t, model.Cents(50000), ComputePrizePool(0))
}

func TestEligibilityExcludesZeroTickets(t *testing.T) {
	a := entry("a", "user-a", 10)
	b := entry("b", "user-b", 5)
	c := entry("c", "user-c", 0)
	dq := entry("d", "user-d", 7)
	dq.Disqualified = true

	assert.True(t, a.Eligible())
	assert.True(t, b.Eligible())
	assert.False(t, c.Eligible(), "zero-ticket entries are out of the pool entirely")
	assert.False(t, dq.Eligible())
}

func TestSelectWinnersDeterministic(t *testing.T) {
	eligible := []model.RaffleEntry{
		entry("a", "user-a", 10),
		entry("b", "user-b", 5),
		entry("c", "user-c", 20),
	}

	s1 := &RaffleService{rng: rand.New(rand.NewSource(42))}
	s2 := &RaffleService{rng: rand.New(rand.NewSource(42))}

	w1 := s1.selectWinners(eligible, 3, 90000)
	w2 := s2.selectWinners(eligible, 3, 90000)
	assert.Equal(t, w1, w2, "same seed and entry set must reproduce the same ordering")
}

func TestSelectWinnersDistinct(t *testing.T) {
	eligible := []model.RaffleEntry{
		entry("a", "user-a", 1),
		entry("b", "user-b", 1000),
		entry("c", "user-c", 3),
		entry("d", "user-d", 7),
	}

	s := &RaffleService{rng: rand.New(rand.NewSource(7))}
	winners := s.selectWinners(eligible, 4, 100000)

	require.Len(t, winners, 4)
	seen := make(map[string]bool)
	for i, w := range winners {
		assert.False(t, seen[w.EntryID], "entry %s drawn twice", w.EntryID)
		seen[w.EntryID] = true
		assert.Equal(t, i+1, w.Place)
	}
}

func TestSelectWinnersPrizeSplit(t *testing.T) {
	eligible := []model.RaffleEntry{
		entry("a", "user-a", 10),
		entry("b", "user-b", 5),
		entry("c", "user-c", 20),
	}

	// $1,000.01 over 3 winners: the remainder cent goes to first place.
	s := &RaffleService{rng: rand.New(rand.NewSource(1))}
	winners := s.selectWinners(eligible, 3, 100001)

	var total model.Cents
	for _, w := range winners {
		total += w.PrizeAmount
	}
	assert.Equal(t, model.Cents(100001), total)
	assert.Equal(t, model.Cents(33335), winners[0].PrizeAmount)
	assert.Equal(t, model.Cents(33333), winners[1].PrizeAmount)
	assert.Equal(t, model.Cents(33333), winners[2].PrizeAmount)
}

func TestSelectWinnersFewerEligibleThanSeats(t *testing.T) {
	eligible := []model.RaffleEntry{
		entry("a", "user-a", 2),
		entry("b", "user-b", 3),
	}

	s := &RaffleService{rng: rand.New(rand.NewSource(9))}
	winners := s.selectWinners(eligible, minInt(10, len(eligible)), 50000)
	assert.Len(t, winners, 2, "all eligible entries win when seats exceed entries")
}

// flakyRaffleRepo fails the first AddTickets calls, then delegates.
type flakyRaffleRepo struct {
	repository.RaffleRepository
	failures int
	addCalls int
}

func (f *flakyRaffleRepo) AddTickets(ctx context.Context, raffleID, userID, eventKey string, source model.TicketSource, count int) (bool, error) {
	f.addCalls++
	if f.failures > 0 {
		f.failures--
		return false, errors.New("database is locked")
	}
	return f.RaffleRepository.AddTickets(ctx, raffleID, userID, eventKey, source, count)
}

type memoryDeduper struct {
	keys map[string]bool
}

func (d *memoryDeduper) Seen(_ context.Context, period, storefrontID, visitorID string) (bool, error) {
	return d.keys[period+":"+storefrontID+":"+visitorID], nil
}

func (d *memoryDeduper) Mark(_ context.Context, period, storefrontID, visitorID string) error {
	d.keys[period+":"+storefrontID+":"+visitorID] = true
	return nil
}

func TestRecordVisitRetryableAfterIssuanceFailure(t *testing.T) {
	ctx := context.Background()
	ledger, err := repository.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := &model.Raffle{
		ID: "raffle-1", Month: 8, Year: 2026, WinnerCount: 3,
		StartAt: start, EndAt: start.AddDate(0, 1, 0), DrawAt: start.AddDate(0, 1, 0),
	}
	require.NoError(t, ledger.CreateRaffle(ctx, r))
	require.NoError(t, ledger.TransitionRaffle(ctx, r.ID, model.RaffleUpcoming, model.RaffleActive))

	flaky := &flakyRaffleRepo{RaffleRepository: ledger, failures: 1}
	ded := &memoryDeduper{keys: make(map[string]bool)}
	svc := NewRaffleService(flaky, ledger, nil, ded, nil,
		RaffleConfig{WinnerCount: 3}, rand.New(rand.NewSource(1)))

	// The ledger write fails; the visitor must not be remembered as seen,
	// or the base ticket would be lost for the whole period.
	_, err = svc.RecordVisit(ctx, "store-1", "alice")
	require.Error(t, err)
	assert.Empty(t, ded.keys)

	// The beacon retry goes through and only then marks the visitor.
	issued, err := svc.RecordVisit(ctx, "store-1", "alice")
	require.NoError(t, err)
	assert.True(t, issued)
	assert.Len(t, ded.keys, 1)

	// Further visits short-circuit in the cache without a ledger write.
	issued, err = svc.RecordVisit(ctx, "store-1", "alice")
	require.NoError(t, err)
	assert.False(t, issued)
	assert.Equal(t, 2, flaky.addCalls)
}

func TestSelectWinnersHeavyWeightDominates(t *testing.T) {
	// One entry holds a million-to-one weight advantage. Across twenty
	// seeds the light entry winning even once would mean the cumulative
	// search is broken.
	lightWins := 0
	for seed := int64(0); seed < 20; seed++ {
		eligible := []model.RaffleEntry{
			entry("tiny", "user-tiny", 1),
			entry("huge", "user-huge", 1_000_000),
		}
		s := &RaffleService{rng: rand.New(rand.NewSource(seed))}
		winners := s.selectWinners(eligible, 1, 10000)
		require.Len(t, winners, 1)
		if winners[0].EntryID == "tiny" {
			lightWins++
		}
	}
	assert.Zero(t, lightWins)
}
