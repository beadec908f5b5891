// Package testutil provides an in-memory stand-in for the Postgres store so
// the checkout workflow can be exercised without containers.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

var ErrInjected = errors.New("injected failure")

// MemStore implements the cart, order and outbox repositories. Transactions
// are serialized and work on a copy that replaces the live state on commit.
type MemStore struct {
	mu   sync.Mutex
	data *memData

	// FailStep makes transactions fail at the named step: "lines", "outbox"
	// or "clear".
	FailStep string
	// AfterLock runs inside a transaction once a cart is locked. The lines it
	// returns land in the cart as if another request had committed them.
	AfterLock func(customer domain.CustomerID) []domain.CartLine
	// ClearCount counts committed cart clears per customer.
	ClearCount map[domain.CustomerID]int
}

type memData struct {
	nextLineID  int64
	nextEventID int
	lines       []domain.CartLine
	orders      []*domain.Order
	events      []*repository.OutboxEvent
	processed   map[int]bool
}

func (d *memData) clone() *memData {
	c := *d
	c.lines = append([]domain.CartLine(nil), d.lines...)
	c.orders = append([]*domain.Order(nil), d.orders...)
	c.events = append([]*repository.OutboxEvent(nil), d.events...)
	c.processed = make(map[int]bool, len(d.processed))
	for k, v := range d.processed {
		c.processed[k] = v
	}
	return &c
}

func NewMemStore() *MemStore {
	return &MemStore{
		data:       &memData{processed: map[int]bool{}},
		ClearCount: map[domain.CustomerID]int{},
	}
}

func (m *MemStore) AddItem(_ context.Context, line *domain.CartLine) (*domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.data.lines {
		l := &m.data.lines[i]
		if l.Customer == line.Customer && l.ProductID == line.ProductID {
			l.Quantity += line.Quantity
			saved := *l
			return &saved, nil
		}
	}

	m.data.nextLineID++
	saved := *line
	saved.ID = m.data.nextLineID
	saved.AddedAt = time.Now().UTC()
	m.data.lines = append(m.data.lines, saved)
	return &saved, nil
}

func (m *MemStore) RemoveItem(_ context.Context, customer domain.CustomerID, lineID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, l := range m.data.lines {
		if l.ID != lineID {
			continue
		}
		if l.Customer != customer {
			return fmt.Errorf("cart line %d: %w", lineID, domain.ErrForbidden)
		}
		m.data.lines = append(m.data.lines[:i], m.data.lines[i+1:]...)
		return nil
	}
	return fmt.Errorf("cart line %d: %w", lineID, domain.ErrNotFound)
}

func (m *MemStore) ListItems(_ context.Context, customer domain.CustomerID) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.cartOf(customer), nil
}

func (m *MemStore) ClearCart(_ context.Context, customer domain.CustomerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.clearCart(customer)
	m.ClearCount[customer]++
	return nil
}

func (m *MemStore) AdoptCart(ctx context.Context, from, to domain.CustomerID) error {
	m.mu.Lock()
	moved := m.data.cartOf(from)
	m.data.clearCart(from)
	m.mu.Unlock()

	for _, l := range moved {
		l.Customer = to
		if _, err := m.AddItem(ctx, &l); err != nil {
			return err
		}
	}
	return nil
}

func (d *memData) cartOf(customer domain.CustomerID) []domain.CartLine {
	lines := []domain.CartLine{}
	for _, l := range d.lines {
		if l.Customer == customer {
			lines = append(lines, l)
		}
	}
	return lines
}

func (d *memData) clearCart(customer domain.CustomerID) {
	kept := d.lines[:0]
	for _, l := range d.lines {
		if l.Customer != customer {
			kept = append(kept, l)
		}
	}
	d.lines = kept
}

func (m *MemStore) RunInTx(ctx context.Context, fn func(tx repository.OrderTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, data: m.data.clone(), cleared: map[domain.CustomerID]int{}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.data = tx.data
	for c, n := range tx.cleared {
		m.ClearCount[c] += n
	}
	return nil
}

type memTx struct {
	store   *MemStore
	data    *memData
	cleared map[domain.CustomerID]int
}

func (t *memTx) fail(step string) error {
	if t.store.FailStep == step {
		return fmt.Errorf("%s: %w", step, ErrInjected)
	}
	return nil
}

func (t *memTx) LockCart(_ context.Context, customer domain.CustomerID) ([]domain.CartLine, error) {
	locked := t.data.cartOf(customer)
	if t.store.AfterLock != nil {
		live := t.store.data
		for _, l := range t.store.AfterLock(customer) {
			live.nextLineID++
			l.ID = live.nextLineID
			l.Customer = customer
			l.AddedAt = time.Now().UTC()
			live.lines = append(live.lines, l)
			t.data.lines = append(t.data.lines, l)
		}
		t.data.nextLineID = live.nextLineID
	}
	return locked, nil
}

func (t *memTx) OrderExists(_ context.Context, paymentReference string) (bool, error) {
	return t.data.byReference(paymentReference) != nil, nil
}

func (t *memTx) InsertOrder(_ context.Context, order *domain.Order) error {
	if t.data.byReference(order.PaymentReference) != nil {
		return domain.ErrDuplicatePayment
	}
	saved := *order
	saved.Lines = nil
	t.data.orders = append(t.data.orders, &saved)
	return nil
}

func (t *memTx) InsertOrderLines(_ context.Context, orderID uuid.UUID, lines []domain.OrderLine) error {
	if err := t.fail("lines"); err != nil {
		return err
	}
	for i, o := range t.data.orders {
		if o.ID != orderID {
			continue
		}
		updated := *o
		for _, l := range lines {
			l.OrderID = orderID
			l.ID = int64(len(updated.Lines) + 1)
			updated.Lines = append(updated.Lines, l)
		}
		t.data.orders[i] = &updated
		return nil
	}
	return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
}

func (t *memTx) InsertOutboxEvent(_ context.Context, event *repository.OutboxEvent) error {
	if err := t.fail("outbox"); err != nil {
		return err
	}
	t.data.nextEventID++
	saved := *event
	saved.ID = t.data.nextEventID
	saved.CreatedAt = time.Now().UTC()
	t.data.events = append(t.data.events, &saved)
	return nil
}

func (t *memTx) ClearLines(_ context.Context, customer domain.CustomerID, lineIDs []int64) error {
	if err := t.fail("clear"); err != nil {
		return err
	}
	drop := make(map[int64]bool, len(lineIDs))
	for _, id := range lineIDs {
		drop[id] = true
	}
	kept := t.data.lines[:0]
	for _, l := range t.data.lines {
		if l.Customer != customer || !drop[l.ID] {
			kept = append(kept, l)
		}
	}
	t.data.lines = kept
	t.cleared[customer]++
	return nil
}

func (d *memData) byReference(ref string) *domain.Order {
	for _, o := range d.orders {
		if o.PaymentReference == ref {
			return o
		}
	}
	return nil
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderLine{}, o.Lines...)
	return &c
}

func (m *MemStore) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.data.orders {
		if o.ID == id {
			return copyOrder(o), nil
		}
	}
	return nil, fmt.Errorf("order: %w", domain.ErrNotFound)
}

func (m *MemStore) GetOrderByPaymentReference(_ context.Context, paymentReference string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o := m.data.byReference(paymentReference); o != nil {
		return copyOrder(o), nil
	}
	return nil, fmt.Errorf("order: %w", domain.ErrNotFound)
}

func (m *MemStore) ListOrdersByCustomer(_ context.Context, customer domain.CustomerID) ([]*domain.Order, error) {
	return m.listOrders(func(o *domain.Order) bool { return o.Customer == customer }), nil
}

func (m *MemStore) ListAllOrders(context.Context) ([]*domain.Order, error) {
	return m.listOrders(func(*domain.Order) bool { return true }), nil
}

func (m *MemStore) listOrders(keep func(*domain.Order) bool) []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := []*domain.Order{}
	for _, o := range m.data.orders {
		if keep(o) {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func (m *MemStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []*repository.OutboxEvent
	for _, e := range m.data.events {
		if !m.data.processed[e.ID] && len(events) < limit {
			events = append(events, e)
		}
	}
	return events, nil
}

func (m *MemStore) MarkEventAsProcessed(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.processed[id] = true
	return nil
}

// OrderCount reports how many orders were committed.
func (m *MemStore) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.orders)
}

var (
	_ repository.CartRepository   = (*MemStore)(nil)
	_ repository.OrderRepository  = (*MemStore)(nil)
	_ repository.OutboxRepository = (*MemStore)(nil)
)
