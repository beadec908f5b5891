// Package payment talks to the hosted payment page provider. The storefront
// never sees card data; it hands out a redirect and later verifies the
// outcome server-to-server.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
)

// ErrUnknownSession is returned by processors that have no record of a
// session id.
var ErrUnknownSession = errors.New("unknown payment session")

type Request struct {
	Customer    domain.CustomerID
	AmountMinor int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
}

// Session is a created hosted payment page.
type Session struct {
	ID          string
	RedirectURL string
}

// Completion is the processor's view of a session after the customer came
// back.
type Completion struct {
	ID          string
	Customer    domain.CustomerID
	Paid        bool
	AmountMinor int64
	Currency    string
}

type Processor interface {
	CreateSession(ctx context.Context, req Request) (Session, error)
	FetchSession(ctx context.Context, id string) (Completion, error)
}
