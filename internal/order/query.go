package order

import (
	"context"
	"fmt"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

// Query serves order history. Administrators see every order; everyone else
// sees only their own.
type Query struct {
	store repository.OrderRepository
}

func NewQuery(store repository.OrderRepository) *Query {
	return &Query{store: store}
}

func (q *Query) ListOrders(ctx context.Context, p domain.Principal) ([]*domain.Order, error) {
	if !p.Authenticated {
		return nil, domain.ErrUnauthenticated
	}
	if p.CanViewAllOrders() {
		return q.store.ListAllOrders(ctx)
	}
	return q.store.ListOrdersByCustomer(ctx, p.Customer)
}

// GetOrder reports another customer's order as not found.
func (q *Query) GetOrder(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Order, error) {
	if !p.Authenticated {
		return nil, domain.ErrUnauthenticated
	}
	o, err := q.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Customer != p.Customer && !p.CanViewAllOrders() {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}
