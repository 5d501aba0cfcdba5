package service

import (
	"context"
	"path/filepath"
	"testing"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventoryFixture(t *testing.T) *InventoryService {
	t.Helper()
	ledger, err := repository.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return NewInventoryService(ledger)
}

func TestCommitOrderSkipsReleasedLines(t *testing.T) {
	ctx := context.Background()
	svc := newInventoryFixture(t)

	p := &model.Product{
		StorefrontID: "store-1",
		Name:         "poster",
		Price:        1500,
		StockPolicy:  model.StockCounted,
		Available:    5,
	}
	require.NoError(t, svc.CreateProduct(ctx, p))

	_, err := svc.Reserve(ctx, p.ID, "order-1", 2)
	require.NoError(t, err)
	dropped, err := svc.Reserve(ctx, p.ID, "order-1", 1)
	require.NoError(t, err)

	// buyer removes a line before paying
	require.NoError(t, svc.Release(ctx, dropped.ID))

	// the stray released row must not block settling the order
	require.NoError(t, svc.CommitOrder(ctx, "order-1"))

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Available)
	assert.Equal(t, 0, got.Reserved)
}

func TestCommitOrderIsRepeatable(t *testing.T) {
	ctx := context.Background()
	svc := newInventoryFixture(t)

	p := &model.Product{
		StorefrontID: "store-1",
		Name:         "sticker pack",
		Price:        400,
		StockPolicy:  model.StockCounted,
		Available:    4,
	}
	require.NoError(t, svc.CreateProduct(ctx, p))

	_, err := svc.Reserve(ctx, p.ID, "order-1", 1)
	require.NoError(t, err)

	require.NoError(t, svc.CommitOrder(ctx, "order-1"))
	require.NoError(t, svc.CommitOrder(ctx, "order-1"))

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Available)
}
