package handler

import (
	"encoding/json"
	"net/http"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/service"
	"instantin-core-api/pkg/apierror"
	"instantin-core-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// OrderHandler handles order lifecycle HTTP requests.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.NewOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	o, err := h.orders.Open(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, o)
}

// Get handles GET /api/v1/orders/{order_id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

// Submit handles POST /api/v1/orders/{order_id}/submit
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Submit(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

type confirmPaymentRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// ConfirmPayment handles POST /api/v1/orders/{order_id}/confirm-payment.
// Called by the payment webhook once funds settle.
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if req.PaymentRef == "" {
		response.Error(w, apierror.ValidationError("payment_ref is required"))
		return
	}

	o, err := h.orders.ConfirmPayment(r.Context(), chi.URLParam(r, "order_id"), req.PaymentRef)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

type shipRequest struct {
	TrackingRef string `json:"tracking_ref"`
}

// Ship handles POST /api/v1/orders/{order_id}/ship
func (h *OrderHandler) Ship(w http.ResponseWriter, r *http.Request) {
	var req shipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	o, err := h.orders.Ship(r.Context(), chi.URLParam(r, "order_id"), req.TrackingRef)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

// Deliver handles POST /api/v1/orders/{order_id}/deliver
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Deliver(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/v1/orders/{order_id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "order_id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

// Fail handles POST /api/v1/orders/{order_id}/fail
func (h *OrderHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	o, err := h.orders.Fail(r.Context(), chi.URLParam(r, "order_id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

// Refund handles POST /api/v1/orders/{order_id}/refund
func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	o, err := h.orders.Refund(r.Context(), chi.URLParam(r, "order_id"), model.Cents(req.AmountCents), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

type flagRequest struct {
	RiskScore float64 `json:"risk_score"`
}

// Flag handles POST /api/v1/orders/{order_id}/flag
func (h *OrderHandler) Flag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	o, err := h.orders.Flag(r.Context(), chi.URLParam(r, "order_id"), req.RiskScore)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

// Approve handles POST /api/v1/orders/{order_id}/approve
func (h *OrderHandler) Approve(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Approve(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, o)
}

// Resettle handles POST /api/v1/orders/{order_id}/resettle. Re-runs the
// idempotent settlement side effects after a partial failure.
func (h *OrderHandler) Resettle(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Resettle(r.Context(), chi.URLParam(r, "order_id")); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "resettled"})
}
