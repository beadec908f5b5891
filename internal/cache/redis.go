package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client redis.UniversalClient, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, customer domain.CustomerID) ([]domain.CartLine, error) {
	data, err := r.client.Get(ctx, cacheKey(customer)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return lines, nil
}

// Set stores lines with a jittered TTL so carts cached together do not
// expire together.
func (r *RedisCache) Set(ctx context.Context, customer domain.CustomerID, lines []domain.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(customer), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, customer domain.CustomerID) error {
	if err := r.client.Del(ctx, cacheKey(customer)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(customer domain.CustomerID) string {
	return fmt.Sprintf("cart:%s", customer)
}
