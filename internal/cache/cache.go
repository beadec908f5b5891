package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_storefront/internal/domain"
)

// CartCache holds read copies of cart lines. The database stays authoritative.
type CartCache interface {
	Get(ctx context.Context, customer domain.CustomerID) ([]domain.CartLine, error)
	Set(ctx context.Context, customer domain.CustomerID, lines []domain.CartLine) error
	Delete(ctx context.Context, customer domain.CustomerID) error
}

var ErrCacheMiss = errors.New("cache miss")
