package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService interface {
	ListOrders(ctx context.Context, p domain.Principal) ([]*domain.Order, error)
	GetOrder(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout, log: log}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, PrincipalFrom(r.Context()))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	dtos := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, toOrderDTO(o))
	}
	respondJSON(w, h.log, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, h.log, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	o, err := h.orders.GetOrder(ctx, PrincipalFrom(r.Context()), id)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, toOrderDTO(o))
}
