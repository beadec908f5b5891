package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from CheckoutState
		to   CheckoutState
		want bool
	}{
		{"form from empty", CheckoutStateEmpty, CheckoutStateFormCollected, true},
		{"resubmit form", CheckoutStateFormCollected, CheckoutStateFormCollected, true},
		{"begin payment", CheckoutStateFormCollected, CheckoutStateAwaitingPayment, true},
		{"confirm", CheckoutStateAwaitingPayment, CheckoutStateConfirmed, true},
		{"abandon while paying", CheckoutStateAwaitingPayment, CheckoutStateAbandoned, true},
		{"skip form", CheckoutStateEmpty, CheckoutStateAwaitingPayment, false},
		{"confirm without payment", CheckoutStateFormCollected, CheckoutStateConfirmed, false},
		{"edit pending order while paying", CheckoutStateAwaitingPayment, CheckoutStateFormCollected, false},
		{"leave confirmed", CheckoutStateConfirmed, CheckoutStateAbandoned, false},
		{"leave abandoned", CheckoutStateAbandoned, CheckoutStateConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestCheckoutState_IsTerminal(t *testing.T) {
	assert.True(t, CheckoutStateConfirmed.IsTerminal())
	assert.True(t, CheckoutStateAbandoned.IsTerminal())
	assert.False(t, CheckoutStateAwaitingPayment.IsTerminal())
	assert.False(t, CheckoutStateEmpty.IsTerminal())
}

func validContact() Contact {
	return Contact{
		FirstName:  "Bob",
		LastName:   "Tomato",
		Address:    "1 Crisper Drawer",
		City:       "Barrie",
		Province:   "ON",
		PostalCode: "L4M 3X9",
		Phone:      "705-555-0100",
	}
}

func TestContactValidate(t *testing.T) {
	require.NoError(t, validContact().Validate())

	c := validContact()
	c.City = "  "
	c.Phone = ""
	err := c.Validate()
	require.ErrorIs(t, err, ErrInvalidContact)
	assert.Contains(t, err.Error(), "city, phone")

	c = validContact()
	c.Province = "Ontario"
	assert.ErrorIs(t, c.Validate(), ErrInvalidContact)
}

func TestCheckoutSession_Expired(t *testing.T) {
	now := time.Now()
	s := &CheckoutSession{
		State:   CheckoutStateAwaitingPayment,
		Pending: &PendingOrder{ExpiresAt: now.Add(-time.Minute)},
	}
	assert.True(t, s.Expired(now))

	s.State = CheckoutStateConfirmed
	assert.False(t, s.Expired(now))

	s.State = CheckoutStateFormCollected
	s.Pending.ExpiresAt = now.Add(time.Minute)
	assert.False(t, s.Expired(now))
}

func TestPrincipal_CanViewAllOrders(t *testing.T) {
	admin := Principal{Customer: "admin@veggies", Authenticated: true, Roles: []string{"Customer", RoleAdministrator}}
	assert.True(t, admin.CanViewAllOrders())

	customer := Principal{Customer: "bob@veggies", Authenticated: true, Roles: []string{"Customer"}}
	assert.False(t, customer.CanViewAllOrders())

	anonymous := Principal{Customer: "4b7c", Roles: []string{RoleAdministrator}}
	assert.False(t, anonymous.CanViewAllOrders())
}
