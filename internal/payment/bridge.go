package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/fjod/go_storefront/internal/pricing"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BridgeConfig struct {
	// BaseURL is the public address customers are sent back to.
	BaseURL   string
	StoreName string
	// BreakerFailures consecutive processor failures open the breaker for
	// BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Bridge turns pending orders into hosted payment requests and checks the
// outcome reported by the processor. Calls are never retried here; the
// customer retries.
type Bridge struct {
	processor Processor
	cfg       BridgeConfig
	createCB  *gobreaker.CircuitBreaker[Session]
	fetchCB   *gobreaker.CircuitBreaker[Completion]
	log       *zap.Logger
}

func NewBridge(processor Processor, cfg BridgeConfig, log *zap.Logger) *Bridge {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("payment circuit breaker state changed",
					zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrUnknownSession) || errors.Is(err, context.Canceled)
			},
		}
	}

	return &Bridge{
		processor: processor,
		cfg:       cfg,
		createCB:  gobreaker.NewCircuitBreaker[Session](settings("payment-create")),
		fetchCB:   gobreaker.NewCircuitBreaker[Completion](settings("payment-verify")),
		log:       log,
	}
}

func (b *Bridge) SuccessURL() string {
	return b.cfg.BaseURL + "/api/v1/checkout/complete?token=" + checkoutSessionPlaceholder
}

func (b *Bridge) CancelURL() string {
	return b.cfg.BaseURL + "/api/v1/checkout/cancel"
}

// CreatePaymentRequest asks the processor for a hosted page charging the
// pending order's total as a single line.
func (b *Bridge) CreatePaymentRequest(ctx context.Context, pending *domain.PendingOrder) (*Session, error) {
	req := Request{
		Customer:    pending.Customer,
		AmountMinor: pricing.ToMinorUnits(pending.Total),
		Currency:    pending.Currency,
		Description: b.cfg.StoreName + " Purchase",
		SuccessURL:  b.SuccessURL(),
		CancelURL:   b.CancelURL(),
		ExpiresAt:   pending.ExpiresAt,
	}

	s, err := b.createCB.Execute(func() (Session, error) {
		return b.processor.CreateSession(ctx, req)
	})
	if err != nil {
		logger.WithTrace(ctx, b.log).Error("payment session creation failed",
			zap.String("customer_id", string(pending.Customer)),
			zap.Int64("amount_minor", req.AmountMinor),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentProvider, err)
	}
	if s.ID == "" || s.RedirectURL == "" {
		return nil, fmt.Errorf("%w: processor returned an incomplete session", domain.ErrPaymentProvider)
	}
	return &s, nil
}

// VerifyCompletion checks an untrusted token with the processor. The
// completion is returned alongside ErrPaymentNotConfirmed when the processor
// knows the session but it is unpaid.
func (b *Bridge) VerifyCompletion(ctx context.Context, token string) (*Completion, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrPaymentNotConfirmed)
	}

	c, err := b.fetchCB.Execute(func() (Completion, error) {
		return b.processor.FetchSession(ctx, token)
	})
	if errors.Is(err, ErrUnknownSession) {
		return nil, fmt.Errorf("%w: unknown payment session", domain.ErrPaymentNotConfirmed)
	}
	if err != nil {
		logger.WithTrace(ctx, b.log).Error("payment verification failed", zap.String("token", token), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentProvider, err)
	}
	if !c.Paid {
		return &c, fmt.Errorf("%w: session %s is unpaid", domain.ErrPaymentNotConfirmed, c.ID)
	}
	return &c, nil
}
