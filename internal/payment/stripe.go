package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
)

const checkoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Stripe refuses expirations closer than 30 minutes.
const minStripeExpiry = 30 * time.Minute

type StripeProcessor struct {
	client checkoutsession.Client
}

// NewStripeProcessor builds a processor for secretKey. apiURL overrides the
// Stripe endpoint and is empty in production.
func NewStripeProcessor(secretKey, apiURL string, httpClient *http.Client) *StripeProcessor {
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		HTTPClient:        httpClient,
	}
	if apiURL != "" {
		cfg.URL = stripe.String(apiURL)
	}

	return &StripeProcessor{
		client: checkoutsession.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Key: secretKey,
		},
	}
}

func (p *StripeProcessor) CreateSession(ctx context.Context, req Request) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.AmountMinor),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(string(req.Customer)),
	}
	if !req.ExpiresAt.IsZero() && time.Until(req.ExpiresAt) >= minStripeExpiry {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.Context = ctx

	s, err := p.client.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe create session: %w", err)
	}
	return Session{ID: s.ID, RedirectURL: s.URL}, nil
}

func (p *StripeProcessor) FetchSession(ctx context.Context, id string) (Completion, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.client.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return Completion{}, ErrUnknownSession
		}
		return Completion{}, fmt.Errorf("stripe get session: %w", err)
	}

	return Completion{
		ID:          s.ID,
		Customer:    domain.CustomerID(s.ClientReferenceID),
		Paid:        s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountMinor: s.AmountTotal,
		Currency:    string(s.Currency),
	}, nil
}
