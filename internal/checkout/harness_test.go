package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_storefront/internal/alert"
	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/order"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type mockCatalog struct {
	products map[int64]*domain.Product
}

func (c *mockCatalog) FindProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

type mockAlerter struct {
	m       sync.Mutex
	alerts  []alert.Alert
	ctxErrs []error
}

func (a *mockAlerter) Raise(ctx context.Context, al alert.Alert) error {
	a.m.Lock()
	defer a.m.Unlock()
	a.alerts = append(a.alerts, al)
	a.ctxErrs = append(a.ctxErrs, ctx.Err())
	return nil
}

func (a *mockAlerter) contextErrors() []error {
	a.m.Lock()
	defer a.m.Unlock()
	return append([]error(nil), a.ctxErrs...)
}

func (a *mockAlerter) kinds() []alert.Kind {
	a.m.Lock()
	defer a.m.Unlock()
	var kinds []alert.Kind
	for _, al := range a.alerts {
		kinds = append(kinds, al.Kind)
	}
	return kinds
}

type refuseAll struct{}

func (refuseAll) Approve() (bool, string) { return false, "no_funds" }

// switchable fails session creation while down is set. afterFetch runs once
// the processor has answered a verification.
type switchable struct {
	payment.Processor
	m          sync.Mutex
	down       bool
	afterFetch func()
}

func (s *switchable) setAfterFetch(fn func()) {
	s.m.Lock()
	defer s.m.Unlock()
	s.afterFetch = fn
}

func (s *switchable) FetchSession(ctx context.Context, id string) (payment.Completion, error) {
	c, err := s.Processor.FetchSession(ctx, id)
	s.m.Lock()
	hook := s.afterFetch
	s.m.Unlock()
	if hook != nil {
		hook()
	}
	return c, err
}

func (s *switchable) setDown(down bool) {
	s.m.Lock()
	defer s.m.Unlock()
	s.down = down
}

func (s *switchable) CreateSession(ctx context.Context, req payment.Request) (payment.Session, error) {
	s.m.Lock()
	down := s.down
	s.m.Unlock()
	if down {
		return payment.Session{}, errors.New("connection refused")
	}
	return s.Processor.CreateSession(ctx, req)
}

type harness struct {
	svc       *Service
	catalog   *mockCatalog
	store     *testutil.MemStore
	sessions  *session.Store
	carts     *cart.Service
	processor *payment.SimulatedProcessor
	gateway   *switchable
	alerter   *mockAlerter
	clock     time.Time
}

func newHarness(t *testing.T, decider payment.Decider) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return buildHarness(client, decider)
}

func buildHarness(client redis.UniversalClient, decider payment.Decider) *harness {
	log := zap.NewNop()
	h := &harness{
		store:     testutil.NewMemStore(),
		processor: payment.NewSimulatedProcessor(decider),
		alerter:   &mockAlerter{},
		clock:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.gateway = &switchable{Processor: h.processor}

	h.catalog = &mockCatalog{products: map[int64]*domain.Product{
		1: {ID: 1, Name: "Baby Carrots", Price: decimal.RequireFromString("4.50")},
		2: {ID: 2, Name: "Heirloom Tomatoes", Price: decimal.RequireFromString("9.00")},
	}}
	h.carts = cart.NewService(h.store, h.catalog, cache.NewRedisCache(client, time.Minute), log)

	h.sessions = session.NewStore(client, time.Hour, 10*time.Minute, log)
	h.sessions.SetClock(func() time.Time { return h.clock })

	bridge := payment.NewBridge(h.gateway, payment.BridgeConfig{
		BaseURL:         "http://shop.test",
		StoreName:       "Farm Stand",
		BreakerFailures: 100,
	}, log)
	materializer := order.NewMaterializer(h.store, h.alerter, h.carts, log)

	h.svc = NewService(h.sessions, h.carts, bridge, materializer, h.store, h.alerter, Config{Currency: "cad"}, log)
	return h
}

func signedIn(customer string) domain.Principal {
	return domain.Principal{Customer: domain.CustomerID(customer), Authenticated: true}
}

func contact() domain.Contact {
	return domain.Contact{
		FirstName:  "Bob",
		LastName:   "Tomato",
		Address:    "1 Garden Row",
		City:       "Barrie",
		Province:   "ON",
		PostalCode: "L4M 1A1",
		Phone:      "705-555-0101",
	}
}

func (h *harness) add(customer string, productID int64, qty int) error {
	_, err := h.carts.AddItem(context.Background(), domain.CustomerID(customer), productID, qty)
	return err
}

// fillCart puts 2 x 4.50 and 1 x 9.00 into the cart.
func (h *harness) fillCart(customer string) error {
	if err := h.add(customer, 1, 2); err != nil {
		return err
	}
	return h.add(customer, 2, 1)
}

// pay runs the form and payment steps and returns the payment reference.
func (h *harness) pay(customer string) (string, error) {
	ctx := context.Background()
	if _, err := h.svc.SubmitForm(ctx, signedIn(customer), contact()); err != nil {
		return "", err
	}
	sess, err := h.svc.BeginPayment(ctx, signedIn(customer))
	if err != nil {
		return "", err
	}
	return sess.PaymentReference, nil
}
