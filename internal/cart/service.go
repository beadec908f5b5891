package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/fjod/go_storefront/internal/pricing"
	"github.com/fjod/go_storefront/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProductLookup is the part of the catalog the cart depends on.
type ProductLookup interface {
	FindProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type Service struct {
	repo    repository.CartRepository
	catalog ProductLookup
	cache   cache.CartCache
	log     *zap.Logger
	sfg     singleflight.Group
}

func NewService(repo repository.CartRepository, catalog ProductLookup, cache cache.CartCache, log *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   cache,
		log:     log,
	}
}

func (s *Service) AddItem(ctx context.Context, customer domain.CustomerID, productID int64, quantity int) (*domain.CartLine, error) {
	if quantity < 1 || quantity > domain.MaxLineQuantity {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	line, err := s.repo.AddItem(ctx, &domain.CartLine{
		Customer:    customer,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   product.Price,
	})
	if err != nil {
		logger.WithTrace(ctx, s.log).Error("add cart item failed",
			zap.String("customer_id", string(customer)), zap.Int64("product_id", productID), zap.Error(err))
		return nil, err
	}

	s.Invalidate(ctx, customer)
	return line, nil
}

func (s *Service) RemoveItem(ctx context.Context, customer domain.CustomerID, lineID int64) error {
	if err := s.repo.RemoveItem(ctx, customer, lineID); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			logger.WithTrace(ctx, s.log).Warn("attempt to remove a foreign cart line",
				zap.String("customer_id", string(customer)), zap.Int64("line_id", lineID))
		}
		return err
	}

	s.Invalidate(ctx, customer)
	return nil
}

// ListItems serves the cart through the read cache. Concurrent misses for the
// same customer share one database read.
func (s *Service) ListItems(ctx context.Context, customer domain.CustomerID) ([]domain.CartLine, error) {
	v, err, _ := s.sfg.Do(string(customer), func() (interface{}, error) {
		lines, err := s.cache.Get(ctx, customer)
		if err == nil {
			return lines, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.WithTrace(ctx, s.log).Warn("cart cache get failed", zap.Error(err))
		}

		lines, err = s.repo.ListItems(ctx, customer)
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, customer, lines); err != nil {
			logger.WithTrace(ctx, s.log).Warn("cart cache set failed", zap.Error(err))
		}
		return lines, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.CartLine), nil
}

// LiveItems bypasses the cache. Checkout freezes its total from this view.
func (s *Service) LiveItems(ctx context.Context, customer domain.CustomerID) ([]domain.CartLine, error) {
	return s.repo.ListItems(ctx, customer)
}

func (s *Service) Summary(ctx context.Context, customer domain.CustomerID) (*domain.CartSummary, error) {
	lines, err := s.ListItems(ctx, customer)
	if err != nil {
		return nil, err
	}
	return pricing.Summarize(customer, lines), nil
}

func (s *Service) LiveSummary(ctx context.Context, customer domain.CustomerID) (*domain.CartSummary, error) {
	lines, err := s.LiveItems(ctx, customer)
	if err != nil {
		return nil, err
	}
	return pricing.Summarize(customer, lines), nil
}

func (s *Service) ClearCart(ctx context.Context, customer domain.CustomerID) error {
	if err := s.repo.ClearCart(ctx, customer); err != nil {
		return err
	}
	s.Invalidate(ctx, customer)
	return nil
}

// AdoptCart folds an anonymous cart into the cart of the account that just
// signed in.
func (s *Service) AdoptCart(ctx context.Context, from, to domain.CustomerID) error {
	if from == "" || from == to {
		return nil
	}
	if err := s.repo.AdoptCart(ctx, from, to); err != nil {
		return fmt.Errorf("adopt cart: %w", err)
	}

	logger.WithTrace(ctx, s.log).Info("anonymous cart adopted",
		zap.String("from", string(from)), zap.String("to", string(to)))
	s.Invalidate(ctx, from)
	s.Invalidate(ctx, to)
	return nil
}

// Invalidate drops the cached copy of a cart. Failures are logged only; the
// entry still expires with its TTL.
func (s *Service) Invalidate(ctx context.Context, customer domain.CustomerID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, customer); err != nil {
		logger.WithTrace(ctx, s.log).Warn("cart cache invalidate failed",
			zap.String("customer_id", string(customer)), zap.Error(err))
	}
}
