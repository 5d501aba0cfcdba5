package model

import "time"

// DropStatus is the drop lifecycle state.
type DropStatus string

const (
	DropDraft     DropStatus = "draft"
	DropScheduled DropStatus = "scheduled"
	DropActive    DropStatus = "active"
	DropPaused    DropStatus = "paused"
	DropEnded     DropStatus = "ended"
	DropCancelled DropStatus = "cancelled"
)

// SplitPolicy selects how settled revenue is divided among collaborators.
type SplitPolicy string

const (
	SplitRevenueShare SplitPolicy = "revenue_share"
	SplitFixed        SplitPolicy = "fixed_split"
	SplitEqual        SplitPolicy = "equal_split"
	SplitCreatorLead  SplitPolicy = "creator_lead"
)

// Drop is a collaborative campaign: multiple creators sell together and
// split the revenue. Share fields are basis points; for fixed_split and
// revenue_share the creator share + participant shares + platform fee must
// total exactly 10000 before the drop may leave draft.
type Drop struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	CreatorID string      `json:"creator_id"`
	Status    DropStatus  `json:"status"`
	Policy    SplitPolicy `json:"policy"`

	CreatorShare    BasisPoints `json:"creator_share"`
	PlatformFee     BasisPoints `json:"platform_fee"`
	MinimumShare    BasisPoints `json:"minimum_share"`
	MaxParticipants int         `json:"max_participants"`
	InviteOnly      bool        `json:"invite_only"`

	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`

	TotalSales  Cents `json:"total_sales"`
	TotalOrders int   `json:"total_orders"`

	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LaunchedAt  *time.Time `json:"launched_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the drop can no longer change state.
func (d *Drop) Terminal() bool {
	return d.Status == DropEnded || d.Status == DropCancelled
}

// AcceptingSales reports whether orders may attach to this drop.
func (d *Drop) AcceptingSales() bool {
	return d.Status == DropActive
}

// ParticipantStatus is the admission lifecycle of one collaborator.
type ParticipantStatus string

const (
	ParticipantInvited   ParticipantStatus = "invited"
	ParticipantApplied   ParticipantStatus = "applied"
	ParticipantPending   ParticipantStatus = "pending"
	ParticipantApproved  ParticipantStatus = "approved"
	ParticipantActive    ParticipantStatus = "active"
	ParticipantInactive  ParticipantStatus = "inactive"
	ParticipantRemoved   ParticipantStatus = "removed"
	ParticipantDeclined  ParticipantStatus = "declined"
	ParticipantCompleted ParticipantStatus = "completed"
)

// Counted reports whether this record blocks the user from being admitted
// again. Only removed and declined rows free the slot.
func (s ParticipantStatus) Counted() bool {
	return s != ParticipantRemoved && s != ParticipantDeclined
}

// DropParticipant joins a user to a drop with an individual share. A user
// holds at most one non-removed record per drop. Share is basis points for
// percentage policies; FixedAmount is used by creator_lead.
type DropParticipant struct {
	ID          string            `json:"id"`
	DropID      string            `json:"drop_id"`
	UserID      string            `json:"user_id"`
	Status      ParticipantStatus `json:"status"`
	Share       BasisPoints       `json:"share"`
	FixedAmount Cents             `json:"fixed_amount"`
	Earned      Cents             `json:"earned"`
	PaidOut     Cents             `json:"paid_out"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
