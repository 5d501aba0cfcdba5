package model

import (
	"fmt"
	"time"
)

// RaffleStatus is the raffle lifecycle state.
type RaffleStatus string

const (
	RaffleUpcoming  RaffleStatus = "upcoming"
	RaffleActive    RaffleStatus = "active"
	RafflePaused    RaffleStatus = "paused"
	RaffleDrawing   RaffleStatus = "drawing"
	RaffleCompleted RaffleStatus = "completed"
	RaffleCancelled RaffleStatus = "cancelled"
)

// TicketSource identifies how tickets were earned. Base tickets come from
// unique visits and are deduplicated; the rest are additive bonuses tracked
// separately for auditability.
type TicketSource string

const (
	TicketVisit    TicketSource = "visit"
	TicketSale     TicketSource = "sale"
	TicketReferral TicketSource = "referral"
	TicketSocial   TicketSource = "social"
)

// Raffle is one monthly award period. (Month, Year) is unique. PrizePool
// carries any rollover from a prior period that completed with no eligible
// entries.
type Raffle struct {
	ID          string       `json:"id"`
	Month       int          `json:"month"`
	Year        int          `json:"year"`
	Status      RaffleStatus `json:"status"`
	PrizePool   Cents        `json:"prize_pool"`
	Rollover    Cents        `json:"rollover"`
	WinnerCount int          `json:"winner_count"`

	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	DrawAt  time.Time `json:"draw_at"`

	TotalTickets int `json:"total_tickets"`
	TotalEntries int `json:"total_entries"`

	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Period renders the award period, e.g. "2026-08".
func (r *Raffle) Period() string {
	return fmt.Sprintf("%04d-%02d", r.Year, r.Month)
}

// Drawable reports whether the drawing may start at now.
func (r *Raffle) Drawable(now time.Time) bool {
	return r.Status == RaffleActive && !now.Before(r.DrawAt)
}

// RaffleEntry accumulates one user's tickets for one raffle. Ticket counts
// are monotonically non-decreasing until the raffle enters drawing; once
// the raffle completes the entry is immutable except for prize-claim
// bookkeeping.
type RaffleEntry struct {
	ID       string `json:"id"`
	RaffleID string `json:"raffle_id"`
	UserID   string `json:"user_id"`

	BaseTickets     int `json:"base_tickets"`
	SaleTickets     int `json:"sale_tickets"`
	ReferralTickets int `json:"referral_tickets"`
	SocialTickets   int `json:"social_tickets"`

	Disqualified bool   `json:"disqualified"`
	DisqualifyReason string `json:"disqualify_reason,omitempty"`

	IsWinner    bool       `json:"is_winner"`
	PrizePlace  int        `json:"prize_place,omitempty"`
	PrizeAmount Cents      `json:"prize_amount,omitempty"`
	Claimed     bool       `json:"claimed"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalTickets is the entry's draw weight: base plus all bonus sources.
func (e *RaffleEntry) TotalTickets() int {
	return e.BaseTickets + e.SaleTickets + e.ReferralTickets + e.SocialTickets
}

// Eligible reports whether the entry participates in the draw pool.
// Zero-ticket entries are excluded entirely, not merely low-weight.
func (e *RaffleEntry) Eligible() bool {
	return !e.Disqualified && e.TotalTickets() > 0
}

// Winner describes one drawn entry with its placement and prize.
type Winner struct {
	UserID      string `json:"user_id"`
	EntryID     string `json:"entry_id"`
	Place       int    `json:"place"`
	Tickets     int    `json:"tickets"`
	PrizeAmount Cents  `json:"prize_amount"`
}
