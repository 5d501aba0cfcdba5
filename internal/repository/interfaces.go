package repository

import (
	"context"
	"errors"
	"time"

	"instantin-core-api/internal/model"
)

// ErrOptimisticLock is returned when a versioned update lost a race.
// Callers reload and retry or surface a conflict.
var ErrOptimisticLock = errors.New("optimistic locking failed")

// ProductRepository is the ledger's product/stock surface. Reserve, commit
// and release each execute as one atomic transaction so concurrent callers
// on the same product serialize correctly.
type ProductRepository interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)

	// RetireProduct soft-retires: historical orders keep referencing it.
	RetireProduct(ctx context.Context, id string) error

	// Reserve atomically holds qty units for an order. Fails with
	// model.ErrInsufficientStock without mutating state when qty exceeds
	// unreserved stock on a counted product.
	Reserve(ctx context.Context, productID, orderID string, qty int) (*model.Reservation, error)

	// CommitReservation converts a hold into a permanent deduction.
	// Idempotent: committing an already-committed reservation is a no-op.
	CommitReservation(ctx context.Context, reservationID string) error

	// ReleaseReservation returns held stock without deducting. Idempotent,
	// including on committed reservations.
	ReleaseReservation(ctx context.Context, reservationID string) error

	GetReservation(ctx context.Context, reservationID string) (*model.Reservation, error)
	ReservationsForOrder(ctx context.Context, orderID string) ([]model.Reservation, error)
}

// OrderRepository persists orders with optimistic concurrency: UpdateOrder
// matches on the loaded version and returns ErrOptimisticLock when another
// writer got there first.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) error

	// PlatformFeesBetween sums platform fees over orders paid in [from, to).
	// Feeds the raffle prize-pool computation.
	PlatformFeesBetween(ctx context.Context, from, to time.Time) (model.Cents, error)
}

// DistributionRow is one recipient's share of a settled order.
type DistributionRow struct {
	RecipientType string // "creator", "participant" or "platform"
	RecipientID   string // participant row id, or user id for creator/platform
	UserID        string
	Amount        model.Cents
}

// DropRepository persists drops, participants and recorded distributions.
type DropRepository interface {
	CreateDrop(ctx context.Context, d *model.Drop) error
	GetDrop(ctx context.Context, id string) (*model.Drop, error)
	UpdateDrop(ctx context.Context, d *model.Drop) error

	// AddParticipant inserts a participant row, failing with
	// model.ErrDuplicateParticipant when the user already holds a
	// non-removed record for the drop.
	AddParticipant(ctx context.Context, p *model.DropParticipant) error
	Participants(ctx context.Context, dropID string) ([]model.DropParticipant, error)
	UpdateParticipant(ctx context.Context, p *model.DropParticipant) error

	// RecordDistribution stores the computed shares for one settled order,
	// credits participant earnings and bumps the drop's aggregate counters,
	// all in one transaction. Re-recording the same order is a no-op so the
	// settlement side effect can be retried at-least-once.
	RecordDistribution(ctx context.Context, dropID, orderID string, total model.Cents, rows []DistributionRow) error
}

// RaffleRepository persists raffle periods, entries and ticket events.
type RaffleRepository interface {
	CreateRaffle(ctx context.Context, r *model.Raffle) error
	GetRaffle(ctx context.Context, id string) (*model.Raffle, error)
	GetRaffleByPeriod(ctx context.Context, year, month int) (*model.Raffle, error)

	// CurrentRaffle returns the raffle accepting entries right now, or
	// model.ErrNotFound.
	CurrentRaffle(ctx context.Context) (*model.Raffle, error)

	// TransitionRaffle CASes status from -> to; returns
	// model.ErrInvalidTransition if the raffle is not in from.
	TransitionRaffle(ctx context.Context, id string, from, to model.RaffleStatus) error

	// AddTickets credits tickets to a user's entry inside one transaction,
	// creating the entry on first issuance. eventKey deduplicates: a second
	// event with the same (raffle, user, key, source) reports issued=false
	// and changes nothing. Issuance against a raffle that is not active
	// fails with model.ErrInvalidTransition, so nothing lands mid-draw.
	AddTickets(ctx context.Context, raffleID, userID, eventKey string, source model.TicketSource, count int) (issued bool, err error)

	Entries(ctx context.Context, raffleID string) ([]model.RaffleEntry, error)
	DisqualifyEntry(ctx context.Context, entryID, reason string) error

	// MarkWinners records placements and prizes and completes the raffle.
	// Valid only from drawing.
	MarkWinners(ctx context.Context, raffleID string, winners []model.Winner) error

	// AddToPool rolls an undistributed amount into a raffle's prize pool.
	AddToPool(ctx context.Context, raffleID string, amount model.Cents) error

	ClaimPrize(ctx context.Context, entryID string) error
}

// Ledger is the full durable store behind the commerce core. The backend
// is selected by configuration; SQLite and Postgres are provided.
type Ledger interface {
	ProductRepository
	OrderRepository
	DropRepository
	RaffleRepository

	// Stats returns operational counters for the admin endpoint.
	Stats(ctx context.Context) (map[string]interface{}, error)

	Close() error
}

// StorefrontDirectory reads storefront metadata the core does not own.
// Backed by the platform's MySQL database; read-mostly and optional — the
// core degrades to defaults when the directory is unreachable.
type StorefrontDirectory interface {
	GetStorefrontInfo(ctx context.Context, storefrontID string) (*model.StorefrontInfo, error)
}
