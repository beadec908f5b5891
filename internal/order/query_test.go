package order

import (
	"context"
	"testing"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	m, store, _, _ := setup(t)
	ctx := context.Background()

	fillCart(t, store, "bob")
	bobs, err := m.Materialize(ctx, pending("bob", "18.00"), "cs_bob", decimal.RequireFromString("18.00"))
	require.NoError(t, err)

	fillCart(t, store, "ann")
	anns, err := m.Materialize(ctx, pending("ann", "18.00"), "cs_ann", decimal.RequireFromString("18.00"))
	require.NoError(t, err)

	q := NewQuery(store)
	bob := domain.Principal{Customer: "bob", Authenticated: true}
	admin := domain.Principal{Customer: "root", Authenticated: true, Roles: []string{domain.RoleAdministrator}}

	t.Run("customer sees own orders", func(t *testing.T) {
		orders, err := q.ListOrders(ctx, bob)
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, bobs.Order.ID, orders[0].ID)
	})

	t.Run("administrator sees all orders", func(t *testing.T) {
		orders, err := q.ListOrders(ctx, admin)
		require.NoError(t, err)
		assert.Len(t, orders, 2)

		o, err := q.GetOrder(ctx, admin, anns.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CustomerID("ann"), o.Customer)
	})

	t.Run("other customer's order is not found", func(t *testing.T) {
		_, err := q.GetOrder(ctx, bob, anns.Order.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := q.GetOrder(ctx, bob, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		anon := domain.Principal{Customer: "anon-1"}
		_, err := q.ListOrders(ctx, anon)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		_, err = q.GetOrder(ctx, anon, bobs.Order.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("administrator role without sign in", func(t *testing.T) {
		_, err := q.ListOrders(ctx, domain.Principal{Customer: "x", Roles: []string{domain.RoleAdministrator}})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}
