package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CatalogService interface {
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	ListProductsByCategory(ctx context.Context, category string) ([]*domain.Product, error)
}

type CatalogHandler struct {
	catalog CatalogService
	timeout time.Duration
	log     *zap.Logger
}

func NewCatalogHandler(catalog CatalogService, timeout time.Duration, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, timeout: timeout, log: log}
}

// GET /api/v1/catalog/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	dtos := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, CategoryDTO{ID: c.ID, Name: c.Name})
	}
	respondJSON(w, h.log, http.StatusOK, dtos)
}

// GET /api/v1/catalog/categories/{name}/products
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		respondError(w, h.log, http.StatusBadRequest, "invalid_category", "category name is required")
		return
	}

	products, err := h.catalog.ListProductsByCategory(ctx, name)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, toProductDTO(p))
	}
	respondJSON(w, h.log, http.StatusOK, dtos)
}
