// Package session keeps checkout sessions and their pending orders in Redis.
// Nothing here reaches the order database.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxUpdateAttempts = 5

var ErrConflict = errors.New("checkout session changed concurrently")

type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	grace  time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewStore returns a store whose pending orders live for ttl. Keys are kept
// for an extra grace period so a late read still sees the abandoned session.
func NewStore(client redis.UniversalClient, ttl, grace time.Duration, log *zap.Logger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		grace:  grace,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) Now() time.Time {
	return s.now()
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Get returns the customer's session, or an Empty one when none exists. A
// session found past its expiry is moved to Abandoned before it is returned.
func (s *Store) Get(ctx context.Context, customer domain.CustomerID) (*domain.CheckoutSession, error) {
	data, err := s.client.Get(ctx, sessionKey(customer)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.empty(customer), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	sess, err := decode(data)
	if err != nil {
		return nil, err
	}
	if !sess.Expired(s.now()) {
		return sess, nil
	}
	return s.Update(ctx, customer, func(*domain.CheckoutSession) error { return nil })
}

// Update applies fn to the current session under WATCH and writes the result
// back. fn returning an error leaves the stored session untouched.
func (s *Store) Update(ctx context.Context, customer domain.CustomerID, fn func(sess *domain.CheckoutSession) error) (*domain.CheckoutSession, error) {
	key := sessionKey(customer)
	var result *domain.CheckoutSession

	txf := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx, customer)
		if err != nil {
			return err
		}

		now := s.now()
		if sess.Expired(now) {
			logger.WithTrace(ctx, s.log).Info("checkout session expired",
				zap.String("customer_id", string(customer)),
				zap.String("state", sess.State.String()))
			sess.State = domain.CheckoutStateAbandoned
		}

		if err := fn(sess); err != nil {
			return err
		}
		sess.UpdatedAt = now

		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		keep := s.ttl + s.grace
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, keep)
			if sess.PaymentReference != "" {
				pipe.Set(ctx, tokenKey(sess.PaymentReference), string(customer), keep)
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = sess
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	return nil, ErrConflict
}

// CustomerForToken resolves the customer a payment reference was issued to.
func (s *Store) CustomerForToken(ctx context.Context, token string) (domain.CustomerID, error) {
	customer, err := s.client.Get(ctx, tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("payment token: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return domain.CustomerID(customer), nil
}

func (s *Store) load(ctx context.Context, tx *redis.Tx, customer domain.CustomerID) (*domain.CheckoutSession, error) {
	data, err := tx.Get(ctx, sessionKey(customer)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.empty(customer), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return decode(data)
}

func (s *Store) empty(customer domain.CustomerID) *domain.CheckoutSession {
	return &domain.CheckoutSession{Customer: customer, State: domain.CheckoutStateEmpty}
}

func decode(data []byte) (*domain.CheckoutSession, error) {
	var sess domain.CheckoutSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func sessionKey(customer domain.CustomerID) string {
	return fmt.Sprintf("checkout:%s", customer)
}

func tokenKey(token string) string {
	return fmt.Sprintf("checkout:token:%s", token)
}
