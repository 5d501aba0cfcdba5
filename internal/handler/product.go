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

// ProductHandler handles product and stock HTTP requests.
type ProductHandler struct {
	inventory *service.InventoryService
}

// NewProductHandler creates a new product handler.
func NewProductHandler(inventory *service.InventoryService) *ProductHandler {
	return &ProductHandler{inventory: inventory}
}

type createProductRequest struct {
	StorefrontID string `json:"storefront_id"`
	Name         string `json:"name"`
	PriceCents   int64  `json:"price_cents"`
	StockPolicy  string `json:"stock_policy"`
	Available    int    `json:"available"`
}

// Create handles POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	p := &model.Product{
		StorefrontID: req.StorefrontID,
		Name:         req.Name,
		Price:        model.Cents(req.PriceCents),
		StockPolicy:  model.StockPolicy(req.StockPolicy),
		Available:    req.Available,
	}
	if err := h.inventory.CreateProduct(r.Context(), p); err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}
	response.Created(w, p)
}

// Get handles GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	p, err := h.inventory.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, p)
}

// Retire handles DELETE /api/v1/products/{product_id}
func (h *ProductHandler) Retire(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	if err := h.inventory.RetireProduct(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	response.NoContent(w)
}
