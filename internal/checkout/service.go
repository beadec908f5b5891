package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/alert"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/fjod/go_storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const alertTimeout = 5 * time.Second

type Config struct {
	Currency string
}

// Completion is what a customer sees after coming back from the payment page.
type Completion struct {
	Customer  domain.CustomerID
	Order     *domain.Order
	Mismatch  bool
	Duplicate bool
}

type Service struct {
	sessions     SessionStore
	carts        CartReader
	bridge       PaymentBridge
	materializer OrderMaterializer
	orders       OrderLookup
	alerter      alert.Alerter
	cfg          Config
	log          *zap.Logger
}

func NewService(
	sessions SessionStore,
	carts CartReader,
	bridge PaymentBridge,
	materializer OrderMaterializer,
	orders OrderLookup,
	alerter alert.Alerter,
	cfg Config,
	log *zap.Logger,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "cad"
	}
	return &Service{
		sessions:     sessions,
		carts:        carts,
		bridge:       bridge,
		materializer: materializer,
		orders:       orders,
		alerter:      alerter,
		cfg:          cfg,
		log:          log,
	}
}

func illegal(from, to domain.CheckoutState) error {
	return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
}

// SubmitForm freezes the current cart total into a new pending order. A
// confirmed or abandoned session starts over; a session waiting for payment
// cannot be edited.
func (s *Service) SubmitForm(ctx context.Context, p domain.Principal, contact domain.Contact) (*domain.CheckoutSession, error) {
	if !p.Authenticated {
		return nil, domain.ErrUnauthenticated
	}
	if err := contact.Validate(); err != nil {
		return nil, err
	}

	summary, err := s.carts.LiveSummary(ctx, p.Customer)
	if err != nil {
		return nil, err
	}
	if len(summary.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	sess, err := s.sessions.Update(ctx, p.Customer, func(sess *domain.CheckoutSession) error {
		if sess.State.IsTerminal() {
			*sess = domain.CheckoutSession{Customer: p.Customer, State: domain.CheckoutStateEmpty}
		}
		if !domain.CanTransitionTo(sess.State, domain.CheckoutStateFormCollected) {
			return illegal(sess.State, domain.CheckoutStateFormCollected)
		}

		now := s.sessions.Now()
		sess.State = domain.CheckoutStateFormCollected
		sess.Pending = &domain.PendingOrder{
			Customer:  p.Customer,
			Contact:   contact,
			Total:     summary.Total,
			Currency:  s.cfg.Currency,
			CreatedAt: now,
			ExpiresAt: now.Add(s.sessions.TTL()),
		}
		sess.PaymentReference = ""
		sess.RedirectURL = ""
		sess.OrderID = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.log).Info("checkout form collected",
		zap.String("customer_id", string(p.Customer)),
		zap.String("total", summary.Total.StringFixed(2)),
		zap.Int("items", summary.ItemCount))
	return sess, nil
}

// BeginPayment creates the hosted payment page for the pending order. A
// processor failure leaves the session in FormCollected so the customer can
// try again.
func (s *Service) BeginPayment(ctx context.Context, p domain.Principal) (*domain.CheckoutSession, error) {
	if !p.Authenticated {
		return nil, domain.ErrUnauthenticated
	}

	current, err := s.sessions.Get(ctx, p.Customer)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionTo(current.State, domain.CheckoutStateAwaitingPayment) || current.Pending == nil {
		return nil, illegal(current.State, domain.CheckoutStateAwaitingPayment)
	}

	paySession, err := s.bridge.CreatePaymentRequest(ctx, current.Pending)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Update(ctx, p.Customer, func(sess *domain.CheckoutSession) error {
		if !domain.CanTransitionTo(sess.State, domain.CheckoutStateAwaitingPayment) ||
			sess.Pending == nil || !sess.Pending.CreatedAt.Equal(current.Pending.CreatedAt) {
			return illegal(sess.State, domain.CheckoutStateAwaitingPayment)
		}
		sess.State = domain.CheckoutStateAwaitingPayment
		sess.PaymentReference = paySession.ID
		sess.RedirectURL = paySession.RedirectURL
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.log).Info("payment requested",
		zap.String("customer_id", string(p.Customer)),
		zap.String("payment_reference", paySession.ID))
	return sess, nil
}

// Complete handles the redirect back from the payment page. token is
// untrusted and is always verified with the processor before an order is
// written. Repeated completions for the same payment return the same order.
func (s *Service) Complete(ctx context.Context, token string) (*Completion, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrPaymentNotConfirmed)
	}
	log := logger.WithTrace(ctx, s.log).With(zap.String("payment_reference", token))

	customer, err := s.sessions.CustomerForToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return s.completeUnknown(ctx, log, token)
	}
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Get(ctx, customer)
	if err != nil {
		return nil, err
	}
	if sess.PaymentReference != token {
		return s.completeUnknown(ctx, log, token)
	}

	switch sess.State {
	case domain.CheckoutStateConfirmed:
		return s.existing(ctx, customer, token)
	case domain.CheckoutStateAbandoned:
		return s.completeUnknown(ctx, log, token)
	case domain.CheckoutStateAwaitingPayment:
	default:
		return nil, illegal(sess.State, domain.CheckoutStateConfirmed)
	}

	paid, err := s.bridge.VerifyCompletion(ctx, token)
	if errors.Is(err, domain.ErrPaymentNotConfirmed) {
		s.abandon(ctx, log, customer, token)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	charged := sess.Pending.Total
	if paid.AmountMinor > 0 {
		charged = decimal.New(paid.AmountMinor, -2)
	}

	res, err := s.materializer.Materialize(ctx, sess.Pending, token, charged)
	if err != nil {
		return nil, err
	}

	_, err = s.sessions.Update(ctx, customer, func(sess *domain.CheckoutSession) error {
		if sess.State == domain.CheckoutStateConfirmed {
			return nil
		}
		if sess.PaymentReference != token || !domain.CanTransitionTo(sess.State, domain.CheckoutStateConfirmed) {
			return illegal(sess.State, domain.CheckoutStateConfirmed)
		}
		sess.State = domain.CheckoutStateConfirmed
		sess.OrderID = res.Order.ID.String()
		return nil
	})
	if err != nil {
		// the order is committed; the session only mirrors it
		log.Error("failed to confirm checkout session", zap.String("order_id", res.Order.ID.String()), zap.Error(err))
	}

	return &Completion{
		Customer:  customer,
		Order:     res.Order,
		Mismatch:  res.Mismatch,
		Duplicate: res.Duplicate,
	}, nil
}

// completeUnknown handles a token with no live session behind it. If the
// processor says it was paid and no order exists, money was taken without an
// order and an operator has to step in.
func (s *Service) completeUnknown(ctx context.Context, log *zap.Logger, token string) (*Completion, error) {
	paid, err := s.bridge.VerifyCompletion(ctx, token)
	if err != nil {
		return nil, err
	}

	if existing, err := s.orders.GetOrderByPaymentReference(ctx, token); err == nil {
		return &Completion{
			Customer:  existing.Customer,
			Order:     existing,
			Duplicate: true,
			Mismatch:  !pricing.Equal(existing.Total, existing.ChargedTotal),
		}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	log.Error("payment confirmed without a checkout session", zap.String("customer_id", string(paid.Customer)))
	s.raise(ctx, log, alert.Alert{
		Kind:             alert.KindOrphanedPayment,
		Customer:         paid.Customer,
		PaymentReference: token,
		Actual:           alert.Amount(decimal.New(paid.AmountMinor, -2)),
		Message:          "processor reports a paid session with no pending order",
	})
	return nil, fmt.Errorf("%w: no pending order for this payment", domain.ErrPaymentNotConfirmed)
}

// raise publishes on a context detached from the request, bounded by
// alertTimeout.
func (s *Service) raise(ctx context.Context, log *zap.Logger, a alert.Alert) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := s.alerter.Raise(ctx, a); err != nil {
		log.Error("failed to raise operator alert", zap.String("kind", string(a.Kind)), zap.Error(err))
	}
}

func (s *Service) existing(ctx context.Context, customer domain.CustomerID, token string) (*Completion, error) {
	o, err := s.orders.GetOrderByPaymentReference(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Completion{
		Customer:  customer,
		Order:     o,
		Duplicate: true,
		Mismatch:  !pricing.Equal(o.Total, o.ChargedTotal),
	}, nil
}

func (s *Service) abandon(ctx context.Context, log *zap.Logger, customer domain.CustomerID, token string) {
	_, err := s.sessions.Update(ctx, customer, func(sess *domain.CheckoutSession) error {
		if sess.PaymentReference != token || !domain.CanTransitionTo(sess.State, domain.CheckoutStateAbandoned) {
			return illegal(sess.State, domain.CheckoutStateAbandoned)
		}
		sess.State = domain.CheckoutStateAbandoned
		return nil
	})
	if err != nil {
		log.Warn("failed to abandon unpaid checkout", zap.Error(err))
		return
	}
	log.Info("unpaid checkout abandoned", zap.String("customer_id", string(customer)))
}

// Cancel follows the processor's cancel redirect. Cancelling an abandoned
// session is a no-op.
func (s *Service) Cancel(ctx context.Context, p domain.Principal) (*domain.CheckoutSession, error) {
	return s.sessions.Update(ctx, p.Customer, func(sess *domain.CheckoutSession) error {
		if sess.State == domain.CheckoutStateAbandoned {
			return nil
		}
		if !domain.CanTransitionTo(sess.State, domain.CheckoutStateAbandoned) {
			return illegal(sess.State, domain.CheckoutStateAbandoned)
		}
		sess.State = domain.CheckoutStateAbandoned
		return nil
	})
}

func (s *Service) Status(ctx context.Context, p domain.Principal) (*domain.CheckoutSession, error) {
	return s.sessions.Get(ctx, p.Customer)
}
