package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/service"
	"instantin-core-api/pkg/apierror"
	"instantin-core-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// DropHandler handles drop lifecycle and participant HTTP requests.
type DropHandler struct {
	drops *service.DropService
}

// NewDropHandler creates a new drop handler.
func NewDropHandler(drops *service.DropService) *DropHandler {
	return &DropHandler{drops: drops}
}

type createDropRequest struct {
	Name            string `json:"name"`
	CreatorID       string `json:"creator_id"`
	Policy          string `json:"policy"`
	CreatorShareBP  int64  `json:"creator_share_bp"`
	PlatformFeeBP   int64  `json:"platform_fee_bp"`
	MinimumShareBP  int64  `json:"minimum_share_bp"`
	MaxParticipants int    `json:"max_participants"`
	InviteOnly      bool   `json:"invite_only"`
}

// Create handles POST /api/v1/drops
func (h *DropHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	d := &model.Drop{
		Name:            req.Name,
		CreatorID:       req.CreatorID,
		Policy:          model.SplitPolicy(req.Policy),
		CreatorShare:    model.BasisPoints(req.CreatorShareBP),
		PlatformFee:     model.BasisPoints(req.PlatformFeeBP),
		MinimumShare:    model.BasisPoints(req.MinimumShareBP),
		MaxParticipants: req.MaxParticipants,
		InviteOnly:      req.InviteOnly,
	}
	if err := h.drops.CreateDrop(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, d)
}

// Get handles GET /api/v1/drops/{drop_id}
func (h *DropHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, participants, err := h.drops.GetDrop(r.Context(), chi.URLParam(r, "drop_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"drop":         d,
		"participants": participants,
	})
}

type scheduleRequest struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// Schedule handles POST /api/v1/drops/{drop_id}/schedule
func (h *DropHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if !req.EndAt.After(req.StartAt) {
		response.Error(w, apierror.ValidationError("end_at must be after start_at"))
		return
	}

	if err := h.drops.Schedule(r.Context(), chi.URLParam(r, "drop_id"), req.StartAt, req.EndAt); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "scheduled"})
}

// Activate handles POST /api/v1/drops/{drop_id}/activate
func (h *DropHandler) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.drops.Activate(r.Context(), chi.URLParam(r, "drop_id")); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "active"})
}

// Pause handles POST /api/v1/drops/{drop_id}/pause
func (h *DropHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.drops.Pause(r.Context(), chi.URLParam(r, "drop_id")); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "paused"})
}

// Resume handles POST /api/v1/drops/{drop_id}/resume
func (h *DropHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.drops.Resume(r.Context(), chi.URLParam(r, "drop_id")); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "active"})
}

// End handles POST /api/v1/drops/{drop_id}/end
func (h *DropHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.drops.End(r.Context(), chi.URLParam(r, "drop_id")); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "ended"})
}

// Cancel handles POST /api/v1/drops/{drop_id}/cancel
func (h *DropHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.drops.Cancel(r.Context(), chi.URLParam(r, "drop_id")); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "cancelled"})
}

type participantRequest struct {
	UserID           string `json:"user_id"`
	ShareBP          int64  `json:"share_bp"`
	FixedAmountCents int64  `json:"fixed_amount_cents"`
}

// Invite handles POST /api/v1/drops/{drop_id}/invites
func (h *DropHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if req.UserID == "" {
		response.Error(w, apierror.ValidationError("user_id is required"))
		return
	}

	err := h.drops.Invite(r.Context(), chi.URLParam(r, "drop_id"), req.UserID,
		model.BasisPoints(req.ShareBP), model.Cents(req.FixedAmountCents))
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, map[string]interface{}{"status": "invited"})
}

// Admit handles POST /api/v1/drops/{drop_id}/participants
func (h *DropHandler) Admit(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if req.UserID == "" {
		response.Error(w, apierror.ValidationError("user_id is required"))
		return
	}

	err := h.drops.Admit(r.Context(), chi.URLParam(r, "drop_id"), req.UserID,
		model.BasisPoints(req.ShareBP), model.Cents(req.FixedAmountCents))
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, map[string]interface{}{"status": "admitted"})
}

// RemoveParticipant handles DELETE /api/v1/drops/{drop_id}/participants/{participant_id}
func (h *DropHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	err := h.drops.RemoveParticipant(r.Context(), chi.URLParam(r, "drop_id"), chi.URLParam(r, "participant_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.NoContent(w)
}
