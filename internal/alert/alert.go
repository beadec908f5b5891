// Package alert publishes conditions that need a human to look at them.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const Topic = "storefront-alerts"

type Kind string

const (
	KindOrderPaymentMismatch   Kind = "order_payment_mismatch"
	KindMaterializationFailure Kind = "materialization_failure"
	KindOrphanedPayment        Kind = "orphaned_payment"
)

type Alert struct {
	Kind             Kind              `json:"kind"`
	Customer         domain.CustomerID `json:"customer_id"`
	OrderID          string            `json:"order_id,omitempty"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	Expected         *decimal.Decimal  `json:"expected,omitempty"`
	Actual           *decimal.Decimal  `json:"actual,omitempty"`
	Message          string            `json:"message"`
	RaisedAt         time.Time         `json:"raised_at"`
}

type Alerter interface {
	Raise(ctx context.Context, a Alert) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaAlerter struct {
	writer messageWriter
}

func NewKafkaAlerter(brokers ...string) *KafkaAlerter {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaAlerter{writer: w}
}

// Raise publishes the alert keyed by customer. Alerts about one customer stay
// ordered.
func (k *KafkaAlerter) Raise(ctx context.Context, a Alert) error {
	if a.RaisedAt.IsZero() {
		a.RaisedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(a.Customer),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "alert_kind", Value: []byte(a.Kind)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.Kind, err)
	}
	return nil
}

func (k *KafkaAlerter) Close() error {
	return k.writer.Close()
}

// Amount returns a pointer for the optional money fields.
func Amount(d decimal.Decimal) *decimal.Decimal {
	return &d
}
