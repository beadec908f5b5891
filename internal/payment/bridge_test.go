package payment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockProcessor struct {
	m         sync.RWMutex
	createErr error
	fetchErr  error
	calls     int
	lastReq   Request
	fetched   Completion
}

func (p *mockProcessor) CreateSession(_ context.Context, req Request) (Session, error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.calls++
	p.lastReq = req
	if p.createErr != nil {
		return Session{}, p.createErr
	}
	return Session{ID: "cs_1", RedirectURL: "https://pay.example/cs_1"}, nil
}

func (p *mockProcessor) FetchSession(_ context.Context, _ string) (Completion, error) {
	p.m.RLock()
	defer p.m.RUnlock()
	if p.fetchErr != nil {
		return Completion{}, p.fetchErr
	}
	return p.fetched, nil
}

func pendingOrder(total string) *domain.PendingOrder {
	return &domain.PendingOrder{
		Customer:  "bob",
		Total:     decimal.RequireFromString(total),
		Currency:  "cad",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func newTestBridge(p Processor) *Bridge {
	return NewBridge(p, BridgeConfig{
		BaseURL:         "https://veggies.example/",
		StoreName:       "VeggiTales",
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}, zap.NewNop())
}

func TestCreatePaymentRequest_BuildsSingleLineRequest(t *testing.T) {
	p := &mockProcessor{}
	b := newTestBridge(p)

	s, err := b.CreatePaymentRequest(context.Background(), pendingOrder("18.00"))
	require.NoError(t, err)
	assert.Equal(t, "cs_1", s.ID)

	assert.Equal(t, int64(1800), p.lastReq.AmountMinor)
	assert.Equal(t, "cad", p.lastReq.Currency)
	assert.Equal(t, "VeggiTales Purchase", p.lastReq.Description)
	assert.Equal(t, "https://veggies.example/api/v1/checkout/complete?token={CHECKOUT_SESSION_ID}", p.lastReq.SuccessURL)
	assert.Equal(t, "https://veggies.example/api/v1/checkout/cancel", p.lastReq.CancelURL)
	assert.Equal(t, domain.CustomerID("bob"), p.lastReq.Customer)
}

func TestCreatePaymentRequest_RoundsToCents(t *testing.T) {
	p := &mockProcessor{}
	b := newTestBridge(p)

	_, err := b.CreatePaymentRequest(context.Background(), pendingOrder("10.005"))
	require.NoError(t, err)
	assert.Equal(t, int64(1001), p.lastReq.AmountMinor)
}

func TestCreatePaymentRequest_ProviderErrorAndOpenBreaker(t *testing.T) {
	p := &mockProcessor{createErr: errors.New("connection reset")}
	b := newTestBridge(p)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.CreatePaymentRequest(ctx, pendingOrder("18.00"))
		assert.ErrorIs(t, err, domain.ErrPaymentProvider)
	}
	assert.Equal(t, 2, p.calls)

	_, err := b.CreatePaymentRequest(ctx, pendingOrder("18.00"))
	assert.ErrorIs(t, err, domain.ErrPaymentProvider)
	assert.Equal(t, 2, p.calls, "open breaker short-circuits the processor")
}

func TestVerifyCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("paid", func(t *testing.T) {
		b := newTestBridge(&mockProcessor{fetched: Completion{ID: "cs_1", Paid: true, AmountMinor: 1800}})
		c, err := b.VerifyCompletion(ctx, "cs_1")
		require.NoError(t, err)
		assert.Equal(t, int64(1800), c.AmountMinor)
	})

	t.Run("unpaid", func(t *testing.T) {
		b := newTestBridge(&mockProcessor{fetched: Completion{ID: "cs_1", Paid: false}})
		c, err := b.VerifyCompletion(ctx, "cs_1")
		assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)
		require.NotNil(t, c)
		assert.False(t, c.Paid)
	})

	t.Run("unknown session", func(t *testing.T) {
		b := newTestBridge(&mockProcessor{fetchErr: ErrUnknownSession})
		_, err := b.VerifyCompletion(ctx, "forged")
		assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)
	})

	t.Run("empty token", func(t *testing.T) {
		b := newTestBridge(&mockProcessor{})
		_, err := b.VerifyCompletion(ctx, "")
		assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)
	})

	t.Run("transport failure", func(t *testing.T) {
		b := newTestBridge(&mockProcessor{fetchErr: errors.New("timeout")})
		_, err := b.VerifyCompletion(ctx, "cs_1")
		assert.ErrorIs(t, err, domain.ErrPaymentProvider)
	})
}

func TestSimulatedProcessor(t *testing.T) {
	p := NewSimulatedProcessor(AlwaysApprove{})
	b := newTestBridge(p)
	ctx := context.Background()

	s, err := b.CreatePaymentRequest(ctx, pendingOrder("18.00"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.ID, "sim_"))
	assert.Equal(t, "https://veggies.example/api/v1/checkout/complete?token="+s.ID, s.RedirectURL)

	c, err := b.VerifyCompletion(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, c.Paid)
	assert.Equal(t, int64(1800), c.AmountMinor)
	assert.Equal(t, domain.CustomerID("bob"), c.Customer)
}

type refuseAll struct{}

func (refuseAll) Approve() (bool, string) { return false, "no_funds" }

func TestSimulatedProcessor_Refused(t *testing.T) {
	p := NewSimulatedProcessor(refuseAll{})
	ctx := context.Background()

	s, err := p.CreateSession(ctx, Request{Customer: "bob", AmountMinor: 100, SuccessURL: "x?token={CHECKOUT_SESSION_ID}"})
	require.NoError(t, err)
	assert.Equal(t, "no_funds", p.Refusal(s.ID))

	c, err := p.FetchSession(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, c.Paid)

	p.MarkPaid(s.ID)
	c, err = p.FetchSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, c.Paid)

	_, err = p.FetchSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = p.CreateSession(ctx, Request{AmountMinor: 0})
	assert.Error(t, err)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		roll   int
		paid   bool
		reason string
	}{
		{10, true, ""},
		{94, true, ""},
		{95, false, "unknown reason"},
		{96, false, "no_funds"},
		{100, false, "fraud_suspected"},
		{101, false, "unknown reason"},
	}
	for _, tt := range tests {
		paid, reason := decide(tt.roll)
		assert.Equal(t, tt.paid, paid, "roll %d", tt.roll)
		assert.Equal(t, tt.reason, reason, "roll %d", tt.roll)
	}
}
