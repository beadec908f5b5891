package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutState string

const (
	CheckoutStateEmpty           CheckoutState = "EMPTY"
	CheckoutStateFormCollected   CheckoutState = "FORM_COLLECTED"
	CheckoutStateAwaitingPayment CheckoutState = "AWAITING_PAYMENT"
	CheckoutStateConfirmed       CheckoutState = "CONFIRMED"
	CheckoutStateAbandoned       CheckoutState = "ABANDONED"
)

var transitions = map[CheckoutState][]CheckoutState{
	CheckoutStateEmpty:           {CheckoutStateFormCollected},
	CheckoutStateFormCollected:   {CheckoutStateFormCollected, CheckoutStateAwaitingPayment, CheckoutStateAbandoned},
	CheckoutStateAwaitingPayment: {CheckoutStateConfirmed, CheckoutStateAbandoned},
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateConfirmed || s == CheckoutStateAbandoned
}

func (s CheckoutState) String() string {
	return string(s)
}

func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Contact holds the shipping and contact fields collected by the checkout form.
type Contact struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
}

func (c Contact) Validate() error {
	required := map[string]string{
		"first_name":  c.FirstName,
		"last_name":   c.LastName,
		"address":     c.Address,
		"city":        c.City,
		"province":    c.Province,
		"postal_code": c.PostalCode,
		"phone":       c.Phone,
	}
	var missing []string
	for _, field := range []string{"first_name", "last_name", "address", "city", "province", "postal_code", "phone"} {
		if strings.TrimSpace(required[field]) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidContact, strings.Join(missing, ", "))
	}
	if len(c.Province) > 2 {
		return fmt.Errorf("%w: province must be a 2 letter code", ErrInvalidContact)
	}
	return nil
}

// PendingOrder is the checkout form plus the total frozen at submission. It
// never reaches the database; it lives in the session store until payment
// completes or the session expires.
type PendingOrder struct {
	Customer  CustomerID      `json:"customer_id"`
	Contact   Contact         `json:"contact"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type CheckoutSession struct {
	Customer         CustomerID    `json:"customer_id"`
	State            CheckoutState `json:"state"`
	Pending          *PendingOrder `json:"pending,omitempty"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	RedirectURL      string        `json:"redirect_url,omitempty"`
	OrderID          string        `json:"order_id,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Expired reports whether a session that never reached a terminal state has
// outlived its pending order.
func (s *CheckoutSession) Expired(now time.Time) bool {
	if s.State.IsTerminal() || s.Pending == nil {
		return false
	}
	return now.After(s.Pending.ExpiresAt)
}
