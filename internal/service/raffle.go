package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"instantin-core-api/internal/event"
	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
	"instantin-core-api/pkg/uid"
)

// Prize pool policy: 5% of the prior month's platform fees, floored at $500.
const (
	prizePoolFeeShare   model.BasisPoints = 500
	prizePoolFloor      model.Cents       = 50000
	defaultWinnerCount                    = 10
)

// RaffleConfig tunes ticket issuance.
type RaffleConfig struct {
	WinnerCount int
	// TicketsPerDollar converts settled sale totals into bonus tickets.
	TicketsPerDollar int
}

// VisitDeduper short-circuits repeat visits ahead of the ledger's unique
// event constraint. Seen must be read-only; Mark is called only once the
// ledger has the event, so issuance failures stay retryable.
type VisitDeduper interface {
	Seen(ctx context.Context, period, storefrontID, visitorID string) (bool, error)
	Mark(ctx context.Context, period, storefrontID, visitorID string) error
}

// RaffleService runs the monthly raffle: ticket issuance over the period,
// then a weighted draw without replacement at period end.
type RaffleService struct {
	raffles   repository.RaffleRepository
	orders    repository.OrderRepository
	directory repository.StorefrontDirectory
	deduper   VisitDeduper
	publisher event.Publisher
	config    RaffleConfig

	// rng is injected so draws are reproducible under a fixed seed.
	// drawMu serializes draws; the repository's status CAS keeps ticket
	// issuance out of a raffle that is mid-draw.
	rng    *rand.Rand
	drawMu sync.Mutex
}

// NewRaffleService creates a new raffle service.
// Returns nil if raffles or orders is nil. directory and deduper are
// optional; without them every visit event falls through to the ledger's
// durable deduplication.
func NewRaffleService(
	raffles repository.RaffleRepository,
	orders repository.OrderRepository,
	directory repository.StorefrontDirectory,
	deduper VisitDeduper,
	publisher event.Publisher,
	config RaffleConfig,
	rng *rand.Rand,
) *RaffleService {
	if raffles == nil || orders == nil {
		return nil
	}
	if publisher == nil {
		publisher = event.NewLogPublisher()
	}
	if config.WinnerCount <= 0 {
		config.WinnerCount = defaultWinnerCount
	}
	if config.TicketsPerDollar < 0 {
		config.TicketsPerDollar = 0
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RaffleService{
		raffles:   raffles,
		orders:    orders,
		directory: directory,
		deduper:   deduper,
		publisher: publisher,
		config:    config,
		rng:       rng,
	}
}

// EnsurePeriod returns the raffle for (year, month), creating it as
// upcoming if this is the first touch of the period.
func (s *RaffleService) EnsurePeriod(ctx context.Context, year int, month time.Month) (*model.Raffle, error) {
	r, err := s.raffles.GetRaffleByPeriod(ctx, year, int(month))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	r = &model.Raffle{
		ID:          uid.New(),
		Month:       int(month),
		Year:        year,
		Status:      model.RaffleUpcoming,
		WinnerCount: s.config.WinnerCount,
		StartAt:     start,
		EndAt:       end,
		DrawAt:      end,
	}
	if err := s.raffles.CreateRaffle(ctx, r); err != nil {
		// Lost a create race; the period row exists now.
		if existing, getErr := s.raffles.GetRaffleByPeriod(ctx, year, int(month)); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	log.Printf("[RaffleService] Created raffle %s for period %s", r.ID, r.Period())
	return r, nil
}

// Open moves an upcoming raffle to active so it starts accepting tickets.
func (s *RaffleService) Open(ctx context.Context, raffleID string) error {
	return s.raffles.TransitionRaffle(ctx, raffleID, model.RaffleUpcoming, model.RaffleActive)
}

// Pause stops ticket issuance without ending the period.
func (s *RaffleService) Pause(ctx context.Context, raffleID string) error {
	return s.raffles.TransitionRaffle(ctx, raffleID, model.RaffleActive, model.RafflePaused)
}

// Resume reopens a paused raffle.
func (s *RaffleService) Resume(ctx context.Context, raffleID string) error {
	return s.raffles.TransitionRaffle(ctx, raffleID, model.RafflePaused, model.RaffleActive)
}

// RecordVisit issues one base ticket to the storefront owner for a unique
// visitor. The dedup key is visitor + storefront + period: the same visitor
// refreshing all month earns the owner exactly one base ticket. Returns
// whether a ticket was issued.
func (s *RaffleService) RecordVisit(ctx context.Context, storefrontID, visitorID string) (bool, error) {
	info := s.storefrontInfo(ctx, storefrontID)
	if !info.RaffleEligible {
		return false, nil
	}

	r, err := s.raffles.CurrentRaffle(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	// Redis answers repeat visits cheaply; the ledger's unique event
	// constraint remains the source of truth when Redis is cold or down.
	if s.deduper != nil {
		if seen, err := s.deduper.Seen(ctx, r.Period(), storefrontID, visitorID); err == nil && seen {
			return false, nil
		}
	}

	eventKey := "visit:" + storefrontID + ":" + visitorID
	issued, err := s.raffles.AddTickets(ctx, r.ID, info.OwnerID, eventKey, model.TicketVisit, 1)
	if err != nil {
		return false, err
	}

	// Mark only after the ledger accepted the event. Marking a failed
	// issuance would eat the visitor's ticket for the whole period.
	if s.deduper != nil {
		if err := s.deduper.Mark(ctx, r.Period(), storefrontID, visitorID); err != nil {
			log.Printf("[RaffleService] Failed to mark visitor %s for %s: %v", visitorID, storefrontID, err)
		}
	}
	return issued, nil
}

// RecordSale issues bonus tickets for a settled order, proportional to the
// settled total. Keyed by order id so settlement retries never double-issue.
func (s *RaffleService) RecordSale(ctx context.Context, o *model.Order) (int, error) {
	if s.config.TicketsPerDollar <= 0 {
		return 0, nil
	}
	info := s.storefrontInfo(ctx, o.StorefrontID)
	if !info.RaffleEligible {
		return 0, nil
	}

	count := int(int64(o.SettledTotal()) / 100 * int64(s.config.TicketsPerDollar))
	if count <= 0 {
		return 0, nil
	}

	r, err := s.raffles.CurrentRaffle(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	issued, err := s.raffles.AddTickets(ctx, r.ID, info.OwnerID, "sale:"+o.ID, model.TicketSale, count)
	if err != nil {
		return 0, err
	}
	if !issued {
		return 0, nil
	}
	return count, nil
}

// AwardBonus issues referral or social-share tickets under a caller-chosen
// idempotency key.
func (s *RaffleService) AwardBonus(ctx context.Context, userID, eventKey string, source model.TicketSource, count int) (bool, error) {
	if source != model.TicketReferral && source != model.TicketSocial {
		return false, fmt.Errorf("source %q is not a bonus source", source)
	}
	r, err := s.raffles.CurrentRaffle(ctx)
	if err != nil {
		return false, err
	}
	return s.raffles.AddTickets(ctx, r.ID, userID, eventKey, source, count)
}

// Disqualify removes an entry from drawing eligibility, keeping the audit
// record.
func (s *RaffleService) Disqualify(ctx context.Context, entryID, reason string) error {
	return s.raffles.DisqualifyEntry(ctx, entryID, reason)
}

// ClaimPrize records a winner collecting their prize.
func (s *RaffleService) ClaimPrize(ctx context.Context, entryID string) error {
	return s.raffles.ClaimPrize(ctx, entryID)
}

// ComputePrizePool applies the pool policy to the prior month's fees.
func ComputePrizePool(priorMonthFees model.Cents) model.Cents {
	pool := prizePoolFeeShare.ApplyTo(priorMonthFees)
	if pool < prizePoolFloor {
		pool = prizePoolFloor
	}
	return pool
}

// Draw runs the weighted winner selection for a raffle whose draw date has
// arrived. The raffle is CASed into drawing first, so concurrent ticket
// issuance is rejected for the duration rather than silently lost. With
// zero eligible entries the raffle completes winnerless and the entire pool
// rolls into the next period.
func (s *RaffleService) Draw(ctx context.Context, raffleID string, now time.Time) ([]model.Winner, error) {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	r, err := s.raffles.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if !r.Drawable(now) {
		return nil, model.ErrRaffleNotDrawable
	}
	if err := s.raffles.TransitionRaffle(ctx, raffleID, model.RaffleActive, model.RaffleDrawing); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return nil, model.ErrRaffleNotDrawable
		}
		return nil, err
	}

	pool, err := s.currentPool(ctx, r)
	if err != nil {
		return nil, err
	}

	entries, err := s.raffles.Entries(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	eligible := make([]model.RaffleEntry, 0, len(entries))
	for _, e := range entries {
		if e.Eligible() {
			eligible = append(eligible, e)
		}
	}

	if len(eligible) == 0 {
		return nil, s.rollPoolForward(ctx, r, pool)
	}

	winners := s.selectWinners(eligible, minInt(r.WinnerCount, len(eligible)), pool)
	if err := s.raffles.MarkWinners(ctx, raffleID, winners); err != nil {
		return nil, err
	}

	s.announce(r, winners, pool)
	return winners, nil
}

// currentPool combines the policy pool from last month's fees with any
// rollover already credited to this raffle.
func (s *RaffleService) currentPool(ctx context.Context, r *model.Raffle) (model.Cents, error) {
	priorStart := time.Date(r.Year, time.Month(r.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	priorEnd := priorStart.AddDate(0, 1, 0)
	fees, err := s.orders.PlatformFeesBetween(ctx, priorStart, priorEnd)
	if err != nil {
		return 0, err
	}
	return ComputePrizePool(fees) + r.PrizePool, nil
}

func (s *RaffleService) rollPoolForward(ctx context.Context, r *model.Raffle, pool model.Cents) error {
	if err := s.raffles.MarkWinners(ctx, r.ID, nil); err != nil {
		return err
	}

	nextPeriod := time.Date(r.Year, time.Month(r.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	next, err := s.EnsurePeriod(ctx, nextPeriod.Year(), nextPeriod.Month())
	if err != nil {
		return err
	}
	if err := s.raffles.AddToPool(ctx, next.ID, pool); err != nil {
		return err
	}

	log.Printf("[RaffleService] Raffle %s completed with no eligible entries - rolled %s into %s",
		r.ID, pool.Display(), next.Period())
	s.announce(r, nil, pool)
	return nil
}

// selectWinners draws count distinct entries, weight = total tickets, via
// cumulative-weight binary search with removal. Deterministic for a fixed
// rng seed and entry order. The pool splits evenly across the winners with
// the division remainder going to first place.
func (s *RaffleService) selectWinners(eligible []model.RaffleEntry, count int, pool model.Cents) []model.Winner {
	weights := make([]int64, len(eligible))
	var total int64
	for i := range eligible {
		weights[i] = int64(eligible[i].TotalTickets())
		total += weights[i]
	}

	prize := pool / model.Cents(count)
	first := prize + pool%model.Cents(count)

	winners := make([]model.Winner, 0, count)
	cum := make([]int64, len(eligible))
	for place := 1; place <= count; place++ {
		running := int64(0)
		for i, w := range weights {
			running += w
			cum[i] = running
		}

		target := s.rng.Int63n(total)
		idx := sort.Search(len(cum), func(i int) bool { return cum[i] > target })

		e := eligible[idx]
		amount := prize
		if place == 1 {
			amount = first
		}
		winners = append(winners, model.Winner{
			UserID:      e.UserID,
			EntryID:     e.ID,
			Place:       place,
			Tickets:     e.TotalTickets(),
			PrizeAmount: amount,
		})

		total -= weights[idx]
		weights[idx] = 0
	}
	return winners
}

func (s *RaffleService) announce(r *model.Raffle, winners []model.Winner, pool model.Cents) {
	payload := map[string]interface{}{
		"raffle_id":  r.ID,
		"period":     r.Period(),
		"pool_cents": int64(pool),
		"winners":    winners,
	}
	s.publisher.Publish(event.TopicRaffleWinners, payload)
	for _, w := range winners {
		s.publisher.Publish(event.TopicPayoutScheduled, map[string]interface{}{
			"raffle_id":    r.ID,
			"user_id":      w.UserID,
			"amount_cents": int64(w.PrizeAmount),
			"reason":       "raffle_prize",
		})
	}
	log.Printf("[RaffleService] Raffle %s drawn - %d winners over %s", r.ID, len(winners), pool.Display())
}

// storefrontInfo consults the platform directory, degrading to an eligible
// self-owned storefront when the directory is absent or unreachable.
func (s *RaffleService) storefrontInfo(ctx context.Context, storefrontID string) *model.StorefrontInfo {
	fallback := &model.StorefrontInfo{ID: storefrontID, OwnerID: storefrontID, RaffleEligible: true}
	if s.directory == nil {
		return fallback
	}
	info, err := s.directory.GetStorefrontInfo(ctx, storefrontID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			log.Printf("[RaffleService] Directory lookup failed for %s, using defaults: %v", storefrontID, err)
			return fallback
		}
		return &model.StorefrontInfo{ID: storefrontID, OwnerID: storefrontID, RaffleEligible: false}
	}
	return info
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
