package model

import "errors"

// Domain error taxonomy. All of these are recoverable by the caller: the
// engines return them unwrapped or wrapped with %w, and the HTTP layer maps
// them to response codes. None of them indicate corrupted ledger state.
var (
	// ErrInsufficientStock is returned when a reservation asks for more
	// units than a counted product has unreserved.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidTransition is returned when an order or raffle is asked to
	// move along an edge that does not exist in its lifecycle graph.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSplitConfiguration is returned when a drop's configured shares do
	// not reconcile to 100%. Raised at activation time, never at payout time.
	ErrSplitConfiguration = errors.New("split configuration does not total 100%")

	// ErrCapacityExceeded is returned when a drop has no participant slots left.
	ErrCapacityExceeded = errors.New("participant capacity exceeded")

	// ErrDuplicateParticipant is returned when a user already holds a
	// non-removed participant record for the drop.
	ErrDuplicateParticipant = errors.New("user already participates in drop")

	// ErrRaffleNotDrawable is returned when draw() is called on a raffle
	// that is not active or whose drawing date has not arrived.
	ErrRaffleNotDrawable = errors.New("raffle is not drawable")

	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOrderHeld is returned when a forward transition is attempted on an
	// order that is flagged for manual review.
	ErrOrderHeld = errors.New("order is held for review")
)
