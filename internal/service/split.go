package service

import (
	"fmt"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
)

// ValidateSplitConfig checks a drop's share configuration against its
// participant set. Called at activation so the payment-confirmation path
// never fails on configuration grounds.
func ValidateSplitConfig(d *model.Drop, participants []model.DropParticipant) error {
	counted := countedParticipants(participants)

	switch d.Policy {
	case model.SplitRevenueShare, model.SplitFixed:
		if len(counted) < 1 {
			return fmt.Errorf("%w: policy %s requires at least one participant", model.ErrSplitConfiguration, d.Policy)
		}
		sum := d.CreatorShare + d.PlatformFee
		for _, p := range counted {
			if p.Share < 0 {
				return fmt.Errorf("%w: negative share for participant %s", model.ErrSplitConfiguration, p.UserID)
			}
			sum += p.Share
		}
		if sum != model.FullShare {
			return fmt.Errorf("%w: shares sum to %s, want 100%%", model.ErrSplitConfiguration, sum.Percent())
		}
	case model.SplitCreatorLead:
		if d.CreatorShare < 0 || d.CreatorShare+d.PlatformFee > model.FullShare {
			return fmt.Errorf("%w: creator share plus fee exceeds 100%%", model.ErrSplitConfiguration)
		}
		if len(counted) < 1 {
			return fmt.Errorf("%w: policy %s requires at least one participant", model.ErrSplitConfiguration, d.Policy)
		}
	case model.SplitEqual:
		if d.PlatformFee < 0 || d.PlatformFee > model.FullShare {
			return fmt.Errorf("%w: platform fee out of range", model.ErrSplitConfiguration)
		}
		// A drop with nobody to split with is not a collaboration.
		if len(counted) < 1 {
			return fmt.Errorf("%w: policy %s requires at least one participant", model.ErrSplitConfiguration, d.Policy)
		}
	default:
		return fmt.Errorf("%w: unknown policy %q", model.ErrSplitConfiguration, d.Policy)
	}
	return nil
}

// ComputeDistribution maps a settled order total onto the drop's recipients.
// The rows always reconcile: their amounts sum to total exactly, with any
// rounding remainder credited to the creator. Assumes the configuration was
// validated at activation.
func ComputeDistribution(d *model.Drop, participants []model.DropParticipant, total model.Cents) ([]repository.DistributionRow, error) {
	if total < 0 {
		return nil, fmt.Errorf("distribution total must not be negative")
	}
	counted := countedParticipants(participants)

	var rows []repository.DistributionRow
	platformCut := d.PlatformFee.ApplyTo(total)
	var participantSum model.Cents

	switch d.Policy {
	case model.SplitRevenueShare, model.SplitFixed:
		shares := flooredShares(d, counted)
		for i, p := range counted {
			amount := shares[i].ApplyTo(total)
			participantSum += amount
			rows = append(rows, participantRow(p, amount))
		}

	case model.SplitEqual:
		// Even split across creator + participants out of what remains
		// after the platform fee. The creator's slice is derived below so
		// the remainder lands there.
		n := len(counted) + 1
		each := (total - platformCut) / model.Cents(n)
		for _, p := range counted {
			participantSum += each
			rows = append(rows, participantRow(p, each))
		}

	case model.SplitCreatorLead:
		// Creator takes their cut off the top; participants divide the
		// rest weighted by their configured fixed amounts, or evenly when
		// none are set.
		creatorCut := d.CreatorShare.ApplyTo(total)
		remaining := total - platformCut - creatorCut
		if remaining < 0 {
			remaining = 0
		}
		amounts := weightedAmounts(counted, remaining)
		for i, p := range counted {
			participantSum += amounts[i]
			rows = append(rows, participantRow(p, amounts[i]))
		}

	default:
		return nil, fmt.Errorf("%w: unknown policy %q", model.ErrSplitConfiguration, d.Policy)
	}

	creatorAmount := total - platformCut - participantSum
	if creatorAmount < 0 {
		return nil, fmt.Errorf("%w: shares exceed total", model.ErrSplitConfiguration)
	}

	out := make([]repository.DistributionRow, 0, len(rows)+2)
	out = append(out, repository.DistributionRow{
		RecipientType: "creator",
		RecipientID:   d.CreatorID,
		UserID:        d.CreatorID,
		Amount:        creatorAmount,
	})
	out = append(out, rows...)
	if platformCut > 0 {
		out = append(out, repository.DistributionRow{
			RecipientType: "platform",
			RecipientID:   "platform",
			Amount:        platformCut,
		})
	}
	return out, nil
}

func participantRow(p model.DropParticipant, amount model.Cents) repository.DistributionRow {
	return repository.DistributionRow{
		RecipientType: "participant",
		RecipientID:   p.ID,
		UserID:        p.UserID,
		Amount:        amount,
	}
}

func countedParticipants(participants []model.DropParticipant) []model.DropParticipant {
	out := make([]model.DropParticipant, 0, len(participants))
	for _, p := range participants {
		if p.Status.Counted() {
			out = append(out, p)
		}
	}
	return out
}

// flooredShares applies the minimum-share floor: participants below the
// floor are raised to it and the deficit is taken proportionally from the
// parties above it. The platform fee is never reduced.
func flooredShares(d *model.Drop, counted []model.DropParticipant) []model.BasisPoints {
	shares := make([]model.BasisPoints, len(counted))
	if d.MinimumShare <= 0 {
		for i, p := range counted {
			shares[i] = p.Share
		}
		return shares
	}

	var deficit, above model.BasisPoints
	for i, p := range counted {
		if p.Share < d.MinimumShare {
			deficit += d.MinimumShare - p.Share
			shares[i] = d.MinimumShare
		} else {
			above += p.Share - d.MinimumShare
			shares[i] = p.Share
		}
	}
	if deficit == 0 || above == 0 {
		return shares
	}

	// Shave each above-floor participant in proportion to their headroom,
	// never below the floor themselves.
	taken := model.BasisPoints(0)
	last := -1
	for i := range shares {
		if headroom := shares[i] - d.MinimumShare; headroom > 0 {
			cut := deficit * headroom / above
			shares[i] -= cut
			taken += cut
			last = i
		}
	}
	// Integer division can leave a sliver; take it from the final donor.
	if rest := deficit - taken; rest > 0 && last >= 0 {
		shares[last] -= rest
	}
	return shares
}

// weightedAmounts splits remaining among participants in proportion to
// their fixed amounts, or evenly when none are configured. Truncation
// remainders are left for the creator.
func weightedAmounts(counted []model.DropParticipant, remaining model.Cents) []model.Cents {
	amounts := make([]model.Cents, len(counted))
	if len(counted) == 0 || remaining <= 0 {
		return amounts
	}

	var totalWeight model.Cents
	for _, p := range counted {
		totalWeight += p.FixedAmount
	}
	if totalWeight == 0 {
		each := remaining / model.Cents(len(counted))
		for i := range amounts {
			amounts[i] = each
		}
		return amounts
	}
	for i, p := range counted {
		amounts[i] = remaining * p.FixedAmount / totalWeight
	}
	return amounts
}
