package service

import (
	"testing"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeParticipant(id, userID string, shareBP int64) model.DropParticipant {
	return model.DropParticipant{
		ID:     id,
		UserID: userID,
		Status: model.ParticipantActive,
		Share:  model.BasisPoints(shareBP),
	}
}

func sumRows(rows []repository.DistributionRow) model.Cents {
	var sum model.Cents
	for _, r := range rows {
		sum += r.Amount
	}
	return sum
}

func rowByRecipient(t *testing.T, rows []repository.DistributionRow, recipientID string) repository.DistributionRow {
	t.Helper()
	for _, r := range rows {
		if r.RecipientID == recipientID {
			return r
		}
	}
	t.Fatalf("no row for recipient %s", recipientID)
	return repository.DistributionRow{}
}

func TestValidateSplitConfig(t *testing.T) {
	// creator 50% + participants 30%/19% + fee 1% = 100%
	d := &model.Drop{
		CreatorID:    "creator",
		Policy:       model.SplitRevenueShare,
		CreatorShare: 5000,
		PlatformFee:  100,
	}
	ok := []model.DropParticipant{
		activeParticipant("p1", "u1", 3000),
		activeParticipant("p2", "u2", 1900),
	}
	assert.NoError(t, ValidateSplitConfig(d, ok))

	// creator 50% + participant 40% + fee 5% = 95% -> rejected
	bad := &model.Drop{
		CreatorID:    "creator",
		Policy:       model.SplitRevenueShare,
		CreatorShare: 5000,
		PlatformFee:  500,
	}
	err := ValidateSplitConfig(bad, []model.DropParticipant{activeParticipant("p1", "u1", 4000)})
	assert.ErrorIs(t, err, model.ErrSplitConfiguration)

	// removed participants do not count toward the sum
	withRemoved := append(ok, model.DropParticipant{
		ID: "p3", UserID: "u3", Status: model.ParticipantRemoved, Share: 2000,
	})
	assert.NoError(t, ValidateSplitConfig(d, withRemoved))

	// percentage policies need at least one participant
	assert.ErrorIs(t, ValidateSplitConfig(d, nil), model.ErrSplitConfiguration)

	// so does equal_split: the creator alone has nobody to split with
	equal := &model.Drop{CreatorID: "creator", Policy: model.SplitEqual}
	assert.ErrorIs(t, ValidateSplitConfig(equal, nil), model.ErrSplitConfiguration)
	assert.NoError(t, ValidateSplitConfig(equal, []model.DropParticipant{activeParticipant("p1", "u1", 0)}))
}

func TestComputeDistributionRevenueShare(t *testing.T) {
	d := &model.Drop{
		ID:           "drop",
		CreatorID:    "creator",
		Policy:       model.SplitRevenueShare,
		CreatorShare: 5000,
		PlatformFee:  100,
	}
	participants := []model.DropParticipant{
		activeParticipant("p1", "u1", 3000),
		activeParticipant("p2", "u2", 1900),
	}

	total := model.Cents(10000) // $100.00
	rows, err := ComputeDistribution(d, participants, total)
	require.NoError(t, err)

	assert.Equal(t, total, sumRows(rows))
	assert.Equal(t, model.Cents(3000), rowByRecipient(t, rows, "p1").Amount)
	assert.Equal(t, model.Cents(1900), rowByRecipient(t, rows, "p2").Amount)
	assert.Equal(t, model.Cents(100), rowByRecipient(t, rows, "platform").Amount)
	assert.Equal(t, model.Cents(5000), rowByRecipient(t, rows, "creator").Amount)
}

func TestComputeDistributionRoundingToCreator(t *testing.T) {
	// An awkward total: every truncated remainder must land on the creator.
	d := &model.Drop{
		ID:           "drop",
		CreatorID:    "creator",
		Policy:       model.SplitRevenueShare,
		CreatorShare: 3400,
		PlatformFee:  100,
	}
	participants := []model.DropParticipant{
		activeParticipant("p1", "u1", 3300),
		activeParticipant("p2", "u2", 3200),
	}

	total := model.Cents(9999)
	rows, err := ComputeDistribution(d, participants, total)
	require.NoError(t, err)
	assert.Equal(t, total, sumRows(rows))
}

func TestComputeDistributionEqualSplit(t *testing.T) {
	// $100.01 split among creator + 2 participants: $33.33 each plus the
	// $0.02 remainder to the creator.
	d := &model.Drop{
		ID:        "drop",
		CreatorID: "creator",
		Policy:    model.SplitEqual,
	}
	participants := []model.DropParticipant{
		activeParticipant("p1", "u1", 0),
		activeParticipant("p2", "u2", 0),
	}

	total := model.Cents(10001)
	rows, err := ComputeDistribution(d, participants, total)
	require.NoError(t, err)

	assert.Equal(t, total, sumRows(rows))
	assert.Equal(t, model.Cents(3333), rowByRecipient(t, rows, "p1").Amount)
	assert.Equal(t, model.Cents(3333), rowByRecipient(t, rows, "p2").Amount)
	assert.Equal(t, model.Cents(3335), rowByRecipient(t, rows, "creator").Amount)
}

func TestComputeDistributionCreatorLead(t *testing.T) {
	d := &model.Drop{
		ID:           "drop",
		CreatorID:    "creator",
		Policy:       model.SplitCreatorLead,
		CreatorShare: 6000,
	}
	p1 := activeParticipant("p1", "u1", 0)
	p1.FixedAmount = 3000
	p2 := activeParticipant("p2", "u2", 0)
	p2.FixedAmount = 1000

	total := model.Cents(10000)
	rows, err := ComputeDistribution(d, []model.DropParticipant{p1, p2}, total)
	require.NoError(t, err)

	// creator takes 60%; the remaining $40 splits 3:1 by fixed amounts
	assert.Equal(t, total, sumRows(rows))
	assert.Equal(t, model.Cents(3000), rowByRecipient(t, rows, "p1").Amount)
	assert.Equal(t, model.Cents(1000), rowByRecipient(t, rows, "p2").Amount)
	assert.Equal(t, model.Cents(6000), rowByRecipient(t, rows, "creator").Amount)

	// without fixed amounts the remainder splits evenly
	p1.FixedAmount, p2.FixedAmount = 0, 0
	rows, err = ComputeDistribution(d, []model.DropParticipant{p1, p2}, total)
	require.NoError(t, err)
	assert.Equal(t, total, sumRows(rows))
	assert.Equal(t, model.Cents(2000), rowByRecipient(t, rows, "p1").Amount)
	assert.Equal(t, model.Cents(2000), rowByRecipient(t, rows, "p2").Amount)
}

func TestMinimumShareFloor(t *testing.T) {
	// p2 sits below the 10% floor; the deficit comes out of p1 and p3,
	// never out of the platform fee.
	d := &model.Drop{
		ID:           "drop",
		CreatorID:    "creator",
		Policy:       model.SplitFixed,
		CreatorShare: 3000,
		PlatformFee:  1000,
		MinimumShare: 1000,
	}
	participants := []model.DropParticipant{
		activeParticipant("p1", "u1", 4000),
		activeParticipant("p2", "u2", 500),
		activeParticipant("p3", "u3", 1500),
	}

	total := model.Cents(10000)
	rows, err := ComputeDistribution(d, participants, total)
	require.NoError(t, err)

	assert.Equal(t, total, sumRows(rows))
	assert.Equal(t, model.Cents(1000), rowByRecipient(t, rows, "platform").Amount)
	// p2 raised to the floor
	assert.Equal(t, model.Cents(1000), rowByRecipient(t, rows, "p2").Amount)
	// donors reduced, still above the floor
	p1Amount := rowByRecipient(t, rows, "p1").Amount
	p3Amount := rowByRecipient(t, rows, "p3").Amount
	assert.Less(t, int64(p1Amount), int64(4000))
	assert.Less(t, int64(p3Amount), int64(1500))
	assert.GreaterOrEqual(t, int64(p1Amount), int64(1000))
	assert.GreaterOrEqual(t, int64(p3Amount), int64(1000))
}

func TestComputeDistributionZeroTotal(t *testing.T) {
	d := &model.Drop{
		ID:           "drop",
		CreatorID:    "creator",
		Policy:       model.SplitRevenueShare,
		CreatorShare: 5000,
		PlatformFee:  100,
	}
	participants := []model.DropParticipant{
		activeParticipant("p1", "u1", 4900),
	}

	rows, err := ComputeDistribution(d, participants, 0)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(0), sumRows(rows))
}
