package checkout

import (
	"context"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/order"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/shopspring/decimal"
)

type SessionStore interface {
	Get(ctx context.Context, customer domain.CustomerID) (*domain.CheckoutSession, error)
	Update(ctx context.Context, customer domain.CustomerID, fn func(sess *domain.CheckoutSession) error) (*domain.CheckoutSession, error)
	CustomerForToken(ctx context.Context, token string) (domain.CustomerID, error)
	TTL() time.Duration
	Now() time.Time
}

type CartReader interface {
	LiveSummary(ctx context.Context, customer domain.CustomerID) (*domain.CartSummary, error)
}

type PaymentBridge interface {
	CreatePaymentRequest(ctx context.Context, pending *domain.PendingOrder) (*payment.Session, error)
	VerifyCompletion(ctx context.Context, token string) (*payment.Completion, error)
}

type OrderMaterializer interface {
	Materialize(ctx context.Context, pending *domain.PendingOrder, paymentReference string, charged decimal.Decimal) (*order.Result, error)
}

type OrderLookup interface {
	GetOrderByPaymentReference(ctx context.Context, paymentReference string) (*domain.Order, error)
}
