package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"instantin-core-api/internal/event"
	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
	"instantin-core-api/pkg/uid"
)

// DropService governs drop lifecycle, participant admission and the
// settlement-time revenue distribution.
type DropService struct {
	drops     repository.DropRepository
	publisher event.Publisher
}

// NewDropService creates a new drop service.
// Returns nil if drops is nil (required dependency).
func NewDropService(drops repository.DropRepository, publisher event.Publisher) *DropService {
	if drops == nil {
		return nil
	}
	if publisher == nil {
		publisher = event.NewLogPublisher()
	}
	return &DropService{drops: drops, publisher: publisher}
}

// CreateDrop registers a draft drop.
func (s *DropService) CreateDrop(ctx context.Context, d *model.Drop) error {
	if d.Name == "" || d.CreatorID == "" {
		return fmt.Errorf("drop name and creator are required")
	}
	switch d.Policy {
	case model.SplitRevenueShare, model.SplitFixed, model.SplitEqual, model.SplitCreatorLead:
	default:
		return fmt.Errorf("%w: unknown policy %q", model.ErrSplitConfiguration, d.Policy)
	}
	if d.ID == "" {
		d.ID = uid.New()
	}
	if d.MaxParticipants <= 0 {
		d.MaxParticipants = 10
	}
	d.Status = model.DropDraft
	return s.drops.CreateDrop(ctx, d)
}

// GetDrop loads a drop with its participants attached.
func (s *DropService) GetDrop(ctx context.Context, id string) (*model.Drop, []model.DropParticipant, error) {
	d, err := s.drops.GetDrop(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.drops.Participants(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return d, participants, nil
}

// Schedule moves a draft into scheduled with a start window.
func (s *DropService) Schedule(ctx context.Context, id string, startAt, endAt time.Time) error {
	d, err := s.drops.GetDrop(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != model.DropDraft {
		return model.ErrInvalidTransition
	}
	d.Status = model.DropScheduled
	d.StartAt, d.EndAt = &startAt, &endAt
	return s.drops.UpdateDrop(ctx, d)
}

// Activate opens the drop for sales. The split configuration is validated
// here so the payment-confirmation path never hits a configuration error.
func (s *DropService) Activate(ctx context.Context, id string) error {
	d, err := s.drops.GetDrop(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != model.DropDraft && d.Status != model.DropScheduled {
		return model.ErrInvalidTransition
	}

	participants, err := s.drops.Participants(ctx, id)
	if err != nil {
		return err
	}
	if err := ValidateSplitConfig(d, participants); err != nil {
		return err
	}

	now := time.Now().UTC()
	d.Status = model.DropActive
	d.LaunchedAt = &now
	if err := s.drops.UpdateDrop(ctx, d); err != nil {
		return err
	}

	log.Printf("[DropService] Activated drop %s (%s, policy %s)", d.ID, d.Name, d.Policy)
	s.publishStatus(d)
	return nil
}

// Pause suspends an active drop; sales stop attaching to it.
func (s *DropService) Pause(ctx context.Context, id string) error {
	return s.transition(ctx, id, model.DropActive, model.DropPaused)
}

// Resume returns a paused drop to active.
func (s *DropService) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, model.DropPaused, model.DropActive)
}

func (s *DropService) transition(ctx context.Context, id string, from, to model.DropStatus) error {
	d, err := s.drops.GetDrop(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != from {
		return model.ErrInvalidTransition
	}
	d.Status = to
	if err := s.drops.UpdateDrop(ctx, d); err != nil {
		return err
	}
	s.publishStatus(d)
	return nil
}

// End closes the drop, freezes the counters and completes every counted
// participant, which schedules their final payout.
func (s *DropService) End(ctx context.Context, id string) error {
	d, err := s.drops.GetDrop(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != model.DropActive && d.Status != model.DropPaused {
		return model.ErrInvalidTransition
	}

	now := time.Now().UTC()
	d.Status = model.DropEnded
	d.CompletedAt = &now
	if err := s.drops.UpdateDrop(ctx, d); err != nil {
		return err
	}

	participants, err := s.drops.Participants(ctx, id)
	if err != nil {
		return err
	}
	for i := range participants {
		p := &participants[i]
		if !p.Status.Counted() {
			continue
		}
		p.Status = model.ParticipantCompleted
		if err := s.drops.UpdateParticipant(ctx, p); err != nil {
			return err
		}
		if owed := p.Earned - p.PaidOut; owed > 0 {
			s.publisher.Publish(event.TopicPayoutScheduled, map[string]interface{}{
				"drop_id":        d.ID,
				"participant_id": p.ID,
				"user_id":        p.UserID,
				"amount_cents":   int64(owed),
				"reason":         "drop_ended",
			})
		}
	}

	log.Printf("[DropService] Ended drop %s - total sales %s over %d orders", d.ID, d.TotalSales.Display(), d.TotalOrders)
	s.publishStatus(d)
	return nil
}

// Cancel aborts a drop from any non-terminal state. Participants are
// removed; already-settled orders keep their historical distribution, but
// no new payout obligation is created.
func (s *DropService) Cancel(ctx context.Context, id string) error {
	d, err := s.drops.GetDrop(ctx, id)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return model.ErrInvalidTransition
	}

	now := time.Now().UTC()
	d.Status = model.DropCancelled
	d.CompletedAt = &now
	if err := s.drops.UpdateDrop(ctx, d); err != nil {
		return err
	}

	participants, err := s.drops.Participants(ctx, id)
	if err != nil {
		return err
	}
	for i := range participants {
		p := &participants[i]
		if !p.Status.Counted() {
			continue
		}
		p.Status = model.ParticipantRemoved
		if err := s.drops.UpdateParticipant(ctx, p); err != nil {
			return err
		}
	}

	s.publishStatus(d)
	return nil
}

// Invite records an invitation. Only invited users can join invite-only drops.
func (s *DropService) Invite(ctx context.Context, dropID, userID string, share model.BasisPoints, fixedAmount model.Cents) error {
	d, err := s.drops.GetDrop(ctx, dropID)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return model.ErrInvalidTransition
	}
	return s.drops.AddParticipant(ctx, &model.DropParticipant{
		ID:          uid.New(),
		DropID:      dropID,
		UserID:      userID,
		Status:      model.ParticipantInvited,
		Share:       share,
		FixedAmount: fixedAmount,
	})
}

// Admit brings a user into the drop as an active participant. Guards:
// capacity, duplicate membership, and invite-only mode.
func (s *DropService) Admit(ctx context.Context, dropID, userID string, share model.BasisPoints, fixedAmount model.Cents) error {
	d, err := s.drops.GetDrop(ctx, dropID)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return model.ErrInvalidTransition
	}

	participants, err := s.drops.Participants(ctx, dropID)
	if err != nil {
		return err
	}

	var invited *model.DropParticipant
	active := 0
	for i := range participants {
		p := &participants[i]
		if p.UserID == userID && p.Status == model.ParticipantInvited {
			invited = p
			continue
		}
		if p.Status.Counted() {
			active++
		}
	}

	if active >= d.MaxParticipants {
		return model.ErrCapacityExceeded
	}

	// An invitation converts in place instead of inserting a second row.
	if invited != nil {
		invited.Status = model.ParticipantActive
		if share != 0 {
			invited.Share = share
		}
		if fixedAmount != 0 {
			invited.FixedAmount = fixedAmount
		}
		return s.drops.UpdateParticipant(ctx, invited)
	}

	if d.InviteOnly {
		return fmt.Errorf("drop %s admits by invitation only", dropID)
	}

	return s.drops.AddParticipant(ctx, &model.DropParticipant{
		ID:          uid.New(),
		DropID:      dropID,
		UserID:      userID,
		Status:      model.ParticipantActive,
		Share:       share,
		FixedAmount: fixedAmount,
	})
}

// RemoveParticipant frees the user's slot. Accrued earnings stay recorded.
func (s *DropService) RemoveParticipant(ctx context.Context, dropID, participantID string) error {
	participants, err := s.drops.Participants(ctx, dropID)
	if err != nil {
		return err
	}
	for i := range participants {
		p := &participants[i]
		if p.ID != participantID {
			continue
		}
		if !p.Status.Counted() {
			return nil
		}
		p.Status = model.ParticipantRemoved
		return s.drops.UpdateParticipant(ctx, p)
	}
	return model.ErrNotFound
}

// DistributeOrder computes and records the revenue split for one settled
// order. Recording is idempotent per order, so at-least-once retry from the
// settlement path is safe. Returns the recorded rows.
func (s *DropService) DistributeOrder(ctx context.Context, o *model.Order) ([]repository.DistributionRow, error) {
	if o.DropID == "" {
		return nil, nil
	}
	d, err := s.drops.GetDrop(ctx, o.DropID)
	if err != nil {
		return nil, err
	}
	if d.Terminal() {
		log.Printf("[DropService] Skipping distribution for order %s: drop %s is %s", o.ID, d.ID, d.Status)
		return nil, nil
	}

	participants, err := s.drops.Participants(ctx, o.DropID)
	if err != nil {
		return nil, err
	}

	rows, err := ComputeDistribution(d, participants, o.SettledTotal())
	if err != nil {
		return nil, err
	}
	if err := s.drops.RecordDistribution(ctx, d.ID, o.ID, o.SettledTotal(), rows); err != nil {
		return nil, err
	}

	log.Printf("[DropService] Distributed %s of order %s across %d recipients", o.SettledTotal().Display(), o.ID, len(rows))
	return rows, nil
}

func (s *DropService) publishStatus(d *model.Drop) {
	s.publisher.Publish(event.TopicDropStatus, map[string]interface{}{
		"drop_id": d.ID,
		"status":  string(d.Status),
	})
}
