package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
	"instantin-core-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVisitCounter struct {
	bumps map[string]int
}

func (c *countingVisitCounter) Bump(_ context.Context, storefrontID, counter string) {
	c.bumps[storefrontID+":"+counter]++
}

func postVisit(t *testing.T, h *RaffleHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/raffles/visits", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.RecordVisit(w, req)
	return w
}

func TestRecordVisitBumpsViewCounter(t *testing.T) {
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

	svc := service.NewRaffleService(ledger, ledger, nil, nil, nil,
		service.RaffleConfig{WinnerCount: 3}, nil)
	views := &countingVisitCounter{bumps: make(map[string]int)}
	h := NewRaffleHandler(svc, ledger, views)

	w := postVisit(t, h, `{"storefront_id":"store-1","visitor_id":"alice"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Issued bool `json:"issued"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Issued)
	assert.Equal(t, 1, views.bumps["store-1:views"])

	// a repeat visit issues no ticket but still counts as a page view
	w = postVisit(t, h, `{"storefront_id":"store-1","visitor_id":"alice"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Issued)
	assert.Equal(t, 2, views.bumps["store-1:views"])

	// malformed beacons count nothing
	w = postVisit(t, h, `{"visitor_id":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 2, views.bumps["store-1:views"])
}
