package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	CartAdopter
	AddItem(ctx context.Context, customer domain.CustomerID, productID int64, quantity int) (*domain.CartLine, error)
	RemoveItem(ctx context.Context, customer domain.CustomerID, lineID int64) error
	Summary(ctx context.Context, customer domain.CustomerID) (*domain.CartSummary, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, log *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, timeout: timeout, log: log}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	summary, err := h.carts.Summary(ctx, PrincipalFrom(r.Context()).Customer)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, toCartDTO(summary))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.log, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, h.log, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	customer := PrincipalFrom(r.Context()).Customer
	if _, err := h.carts.AddItem(ctx, customer, req.ProductID, req.Quantity); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	summary, err := h.carts.Summary(ctx, customer)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusCreated, toCartDTO(summary))
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	lineID, err := strconv.ParseInt(chi.URLParam(r, "line_id"), 10, 64)
	if err != nil || lineID <= 0 {
		respondError(w, h.log, http.StatusBadRequest, "invalid_line_id", "line_id must be a positive integer")
		return
	}

	customer := PrincipalFrom(r.Context()).Customer
	if err := h.carts.RemoveItem(ctx, customer, lineID); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	summary, err := h.carts.Summary(ctx, customer)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, toCartDTO(summary))
}
