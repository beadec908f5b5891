// Package order turns a paid checkout into a permanent order.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/alert"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/fjod/go_storefront/internal/pricing"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const EventOrderCreated = "order.created"

// alertTimeout bounds publishing an operator alert once the request that
// raised it is gone.
const alertTimeout = 5 * time.Second

// CartInvalidator drops cached copies of a cart once it has been cleared.
type CartInvalidator interface {
	Invalidate(ctx context.Context, customer domain.CustomerID)
}

type Result struct {
	Order *domain.Order
	// Mismatch is set when the live cart no longer adds up to what was charged.
	Mismatch bool
	// Duplicate is set when the payment had already been turned into an order.
	Duplicate bool
}

type Materializer struct {
	store   repository.OrderRepository
	alerter alert.Alerter
	carts   CartInvalidator
	log     *zap.Logger
	now     func() time.Time
}

func NewMaterializer(store repository.OrderRepository, alerter alert.Alerter, carts CartInvalidator, log *zap.Logger) *Materializer {
	return &Materializer{
		store:   store,
		alerter: alerter,
		carts:   carts,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type orderCreatedEvent struct {
	OrderID          uuid.UUID          `json:"order_id"`
	CustomerID       domain.CustomerID  `json:"customer_id"`
	Total            decimal.Decimal    `json:"total"`
	ChargedTotal     decimal.Decimal    `json:"charged_total"`
	Currency         string             `json:"currency"`
	PaymentReference string             `json:"payment_reference"`
	Lines            []domain.OrderLine `json:"lines"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Materialize writes the order for a confirmed payment. The customer's live
// cart is locked and re-read, the order and its lines are written from it, an
// order.created event is queued and the ordered lines are removed from the
// cart, all in one transaction. charged is the amount the processor collected.
func (m *Materializer) Materialize(ctx context.Context, pending *domain.PendingOrder, paymentReference string, charged decimal.Decimal) (*Result, error) {
	log := logger.WithTrace(ctx, m.log).With(
		zap.String("customer_id", string(pending.Customer)),
		zap.String("payment_reference", paymentReference))

	var created *domain.Order
	err := m.store.RunInTx(ctx, func(tx repository.OrderTx) error {
		cartLines, err := tx.LockCart(ctx, pending.Customer)
		if err != nil {
			return err
		}

		exists, err := tx.OrderExists(ctx, paymentReference)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicatePayment
		}

		order := &domain.Order{
			ID:               uuid.New(),
			Customer:         pending.Customer,
			Contact:          pending.Contact,
			Total:            pricing.CartTotal(cartLines),
			ChargedTotal:     charged,
			Currency:         pending.Currency,
			PaymentReference: paymentReference,
			CreatedAt:        m.now(),
			Lines:            toOrderLines(cartLines),
		}
		for i := range order.Lines {
			order.Lines[i].OrderID = order.ID
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.InsertOrderLines(ctx, order.ID, order.Lines); err != nil {
			return err
		}

		payload, err := json.Marshal(orderCreatedEvent{
			OrderID:          order.ID,
			CustomerID:       order.Customer,
			Total:            order.Total,
			ChargedTotal:     order.ChargedTotal,
			Currency:         order.Currency,
			PaymentReference: order.PaymentReference,
			Lines:            order.Lines,
			CreatedAt:        order.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal order event: %w", err)
		}
		err = tx.InsertOutboxEvent(ctx, &repository.OutboxEvent{
			AggregateId: order.ID.String(),
			EventType:   EventOrderCreated,
			Payload:     payload,
		})
		if err != nil {
			return err
		}

		if err := tx.ClearLines(ctx, pending.Customer, lineIDs(cartLines)); err != nil {
			return err
		}

		created = order
		return nil
	})

	if errors.Is(err, domain.ErrDuplicatePayment) {
		existing, getErr := m.store.GetOrderByPaymentReference(ctx, paymentReference)
		if getErr != nil {
			return nil, fmt.Errorf("%w: load existing order: %v", domain.ErrMaterializationFailure, getErr)
		}
		log.Info("payment already materialized", zap.String("order_id", existing.ID.String()))
		return &Result{
			Order:     existing,
			Duplicate: true,
			Mismatch:  !pricing.Equal(existing.Total, existing.ChargedTotal),
		}, nil
	}

	if err != nil {
		log.Error("order materialization failed", zap.Error(err))
		m.raise(ctx, log, alert.Alert{
			Kind:             alert.KindMaterializationFailure,
			Customer:         pending.Customer,
			PaymentReference: paymentReference,
			Expected:         alert.Amount(charged),
			Message:          err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", domain.ErrMaterializationFailure, err)
	}

	m.carts.Invalidate(ctx, pending.Customer)

	res := &Result{Order: created}
	if !pricing.Equal(created.Total, created.ChargedTotal) {
		res.Mismatch = true
		log.Warn("order total differs from charged amount",
			zap.String("order_id", created.ID.String()),
			zap.String("order_total", created.Total.StringFixed(2)),
			zap.String("charged_total", created.ChargedTotal.StringFixed(2)))
		m.raise(ctx, log, alert.Alert{
			Kind:             alert.KindOrderPaymentMismatch,
			Customer:         created.Customer,
			OrderID:          created.ID.String(),
			PaymentReference: paymentReference,
			Expected:         alert.Amount(created.ChargedTotal),
			Actual:           alert.Amount(created.Total),
			Message:          domain.ErrOrderPaymentMismatch.Error(),
		})
	}

	log.Info("order materialized",
		zap.String("order_id", created.ID.String()),
		zap.Int("lines", len(created.Lines)),
		zap.String("total", created.Total.StringFixed(2)))
	return res, nil
}

// raise publishes on a context detached from the request. Alerts go out even
// when the request was cancelled.
func (m *Materializer) raise(ctx context.Context, log *zap.Logger, a alert.Alert) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := m.alerter.Raise(ctx, a); err != nil {
		log.Error("failed to raise operator alert", zap.String("kind", string(a.Kind)), zap.Error(err))
	}
}

func lineIDs(lines []domain.CartLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ID)
	}
	return ids
}

func toOrderLines(lines []domain.CartLine) []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.OrderLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.UnitPrice,
		})
	}
	return out
}
