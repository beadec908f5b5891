package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/domain"
	"go.uber.org/zap"
)

type CheckoutService interface {
	SubmitForm(ctx context.Context, p domain.Principal, contact domain.Contact) (*domain.CheckoutSession, error)
	BeginPayment(ctx context.Context, p domain.Principal) (*domain.CheckoutSession, error)
	Complete(ctx context.Context, token string) (*checkout.Completion, error)
	Cancel(ctx context.Context, p domain.Principal) (*domain.CheckoutSession, error)
	Status(ctx context.Context, p domain.Principal) (*domain.CheckoutSession, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
	log      *zap.Logger
}

func NewCheckoutHandler(svc CheckoutService, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc, timeout: timeout, log: log}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p := PrincipalFrom(r.Context())
	if !p.Authenticated {
		respondError(w, h.log, http.StatusUnauthorized, "unauthenticated", "sign in to check out")
		return
	}

	var contact domain.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		respondError(w, h.log, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sess, err := h.checkout.SubmitForm(ctx, p, contact)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusCreated, toCheckoutDTO(sess))
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, err := h.checkout.Status(ctx, PrincipalFrom(r.Context()))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, toCheckoutDTO(sess))
}

// POST /api/v1/checkout/payment
// Responds 303 with the hosted payment page in Location.
func (h *CheckoutHandler) BeginPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, err := h.checkout.BeginPayment(ctx, PrincipalFrom(r.Context()))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	w.Header().Set("Location", sess.RedirectURL)
	respondJSON(w, h.log, http.StatusSeeOther, toCheckoutDTO(sess))
}

// GET /api/v1/checkout/complete?token=
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, h.log, http.StatusBadRequest, "missing_token", "token is required")
		return
	}

	done, err := h.checkout.Complete(ctx, token)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	clearCustomerCookie(w)
	respondJSON(w, h.log, http.StatusOK, toCompletionDTO(done))
}

// GET /api/v1/checkout/cancel
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, err := h.checkout.Cancel(ctx, PrincipalFrom(r.Context()))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, toCheckoutDTO(sess))
}
