// Package http exposes the storefront as a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

type Services struct {
	Catalog  CatalogService
	Cart     CartService
	Checkout CheckoutService
	Orders   OrderService
	// Ready reports whether the backing stores are reachable.
	Ready func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig, svc Services, log *zap.Logger) http.Handler {
	catalogHandler := NewCatalogHandler(svc.Catalog, cfg.RequestTimeout, log)
	cartHandler := NewCartHandler(svc.Cart, cfg.RequestTimeout, log)
	checkoutHandler := NewCheckoutHandler(svc.Checkout, cfg.RequestTimeout, log)
	ordersHandler := NewOrdersHandler(svc.Orders, cfg.RequestTimeout, log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(MaxBodySize(cfg.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready != nil {
			if err := svc.Ready(r.Context()); err != nil {
				respondError(w, log, http.StatusServiceUnavailable, "unavailable", err.Error())
				return
			}
		}
		respondJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware(svc.Cart, log))

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/categories", catalogHandler.ListCategories)
			r.Get("/categories/{name}/products", catalogHandler.ListProducts)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Delete("/items/{line_id}", cartHandler.RemoveItem)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.Status)
			r.Post("/", checkoutHandler.SubmitForm)
			r.Post("/payment", checkoutHandler.BeginPayment)
			r.Get("/complete", checkoutHandler.Complete)
			r.Get("/cancel", checkoutHandler.Cancel)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{order_id}", ordersHandler.GetOrder)
		})
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}
