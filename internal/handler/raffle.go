package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
	"instantin-core-api/internal/service"
	"instantin-core-api/pkg/apierror"
	"instantin-core-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// VisitCounter buffers best-effort storefront view counts outside the
// ledger's transactional path.
type VisitCounter interface {
	Bump(ctx context.Context, storefrontID, counter string)
}

// RaffleHandler handles raffle HTTP requests: the public visit beacon plus
// the admin drawing surface.
type RaffleHandler struct {
	raffles    *service.RaffleService
	raffleRepo repository.RaffleRepository
	views      VisitCounter
}

// NewRaffleHandler creates a new raffle handler. views is optional.
func NewRaffleHandler(raffles *service.RaffleService, raffleRepo repository.RaffleRepository, views VisitCounter) *RaffleHandler {
	return &RaffleHandler{raffles: raffles, raffleRepo: raffleRepo, views: views}
}

type visitRequest struct {
	StorefrontID string `json:"storefront_id"`
	VisitorID    string `json:"visitor_id"`
}

// RecordVisit handles POST /api/v1/raffles/visits. Called by the storefront
// page beacon; repeated visits by the same visitor in a period issue nothing.
func (h *RaffleHandler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if req.StorefrontID == "" || req.VisitorID == "" {
		response.Error(w, apierror.ValidationError("storefront_id and visitor_id are required"))
		return
	}

	// Every beacon hit is a page view, ticket or not.
	if h.views != nil {
		h.views.Bump(r.Context(), req.StorefrontID, "views")
	}

	issued, err := h.raffles.RecordVisit(r.Context(), req.StorefrontID, req.VisitorID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"issued": issued})
}

type bonusRequest struct {
	UserID   string `json:"user_id"`
	EventKey string `json:"event_key"`
	Source   string `json:"source"`
	Count    int    `json:"count"`
}

// AwardBonus handles POST /api/v1/raffles/bonus
func (h *RaffleHandler) AwardBonus(w http.ResponseWriter, r *http.Request) {
	var req bonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if req.UserID == "" || req.EventKey == "" || req.Count <= 0 {
		response.Error(w, apierror.ValidationError("user_id, event_key and a positive count are required"))
		return
	}

	issued, err := h.raffles.AwardBonus(r.Context(), req.UserID, req.EventKey, model.TicketSource(req.Source), req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"issued": issued})
}

// Current handles GET /api/v1/raffles/current
func (h *RaffleHandler) Current(w http.ResponseWriter, r *http.Request) {
	raffle, err := h.raffleRepo.CurrentRaffle(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, raffle)
}

// Get handles GET /api/v1/raffles/{raffle_id}
func (h *RaffleHandler) Get(w http.ResponseWriter, r *http.Request) {
	raffle, err := h.raffleRepo.GetRaffle(r.Context(), chi.URLParam(r, "raffle_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.raffleRepo.Entries(r.Context(), raffle.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"raffle":  raffle,
		"entries": entries,
	})
}

// Draw handles POST /api/v1/raffles/{raffle_id}/draw
func (h *RaffleHandler) Draw(w http.ResponseWriter, r *http.Request) {
	winners, err := h.raffles.Draw(r.Context(), chi.URLParam(r, "raffle_id"), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"winners": winners})
}

type disqualifyRequest struct {
	Reason string `json:"reason"`
}

// Disqualify handles POST /api/v1/raffles/entries/{entry_id}/disqualify
func (h *RaffleHandler) Disqualify(w http.ResponseWriter, r *http.Request) {
	var req disqualifyRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.raffles.Disqualify(r.Context(), chi.URLParam(r, "entry_id"), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "disqualified"})
}

// ClaimPrize handles POST /api/v1/raffles/entries/{entry_id}/claim
func (h *RaffleHandler) ClaimPrize(w http.ResponseWriter, r *http.Request) {
	if err := h.raffles.ClaimPrize(r.Context(), chi.URLParam(r, "entry_id")); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "claimed"})
}
