package payment

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Decider chooses whether a simulated payment goes through.
type Decider interface {
	Approve() (bool, string)
}

// RandomDecider approves roughly 95% of payments.
type RandomDecider struct{}

func (RandomDecider) Approve() (bool, string) {
	return decide(rand.Intn(101))
}

var refusals = []string{"no_funds", "card_expired", "card_blocked", "limit_exceeded", "fraud_suspected"}

func decide(roll int) (bool, string) {
	if roll < 95 {
		return true, ""
	}
	reason := roll - 95
	if reason == 0 || reason > len(refusals) {
		return false, "unknown reason"
	}
	return false, refusals[reason-1]
}

// AlwaysApprove is a Decider that approves every payment.
type AlwaysApprove struct{}

func (AlwaysApprove) Approve() (bool, string) { return true, "" }

// SimulatedProcessor stands in for the hosted payment page during local runs.
// The redirect goes straight back to the success URL; the decision is taken
// when the session is created.
type SimulatedProcessor struct {
	mu       sync.Mutex
	decider  Decider
	sessions map[string]Completion
	refused  map[string]string
}

func NewSimulatedProcessor(d Decider) *SimulatedProcessor {
	return &SimulatedProcessor{
		decider:  d,
		sessions: map[string]Completion{},
		refused:  map[string]string{},
	}
}

func (p *SimulatedProcessor) CreateSession(ctx context.Context, req Request) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if req.AmountMinor <= 0 {
		return Session{}, fmt.Errorf("amount must be positive, got %d", req.AmountMinor)
	}

	id := "sim_" + uuid.NewString()
	paid, reason := p.decider.Approve()

	p.mu.Lock()
	p.sessions[id] = Completion{
		ID:          id,
		Customer:    req.Customer,
		Paid:        paid,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}
	if !paid {
		p.refused[id] = reason
	}
	p.mu.Unlock()

	redirect := strings.ReplaceAll(req.SuccessURL, checkoutSessionPlaceholder, id)
	return Session{ID: id, RedirectURL: redirect}, nil
}

func (p *SimulatedProcessor) FetchSession(ctx context.Context, id string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.sessions[id]
	if !ok {
		return Completion{}, ErrUnknownSession
	}
	return c, nil
}

// Refusal reports why a simulated session was declined.
func (p *SimulatedProcessor) Refusal(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refused[id]
}

// MarkPaid flips a session to paid, as if the customer retried on the
// provider's page.
func (p *SimulatedProcessor) MarkPaid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.sessions[id]; ok {
		c.Paid = true
		p.sessions[id] = c
		delete(p.refused, id)
	}
}
