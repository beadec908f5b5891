package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/alert"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer copies alerts from Kafka into the incident store. A message is
// retried until it is stored and only then committed.
type Consumer struct {
	store   Store
	reader  messageReader
	log     *zap.Logger
	backoff time.Duration
}

func NewConsumer(store Store, log *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    alert.Topic,
		GroupID:  "storefront-incidents",
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{store: store, reader: reader, log: log, backoff: time.Second}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.processMessage(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("failed to process alert", zap.Error(err))
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
			}
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("read message: %w", err)
	}

	var a alert.Alert
	if err := json.Unmarshal(m.Value, &a); err != nil || a.Kind == "" {
		// committed so it is never redelivered
		c.log.Error("skipping malformed alert",
			zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		return c.commit(ctx, m)
	}

	inc := FromAlert(a, fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset))
	for {
		err := c.store.Record(ctx, inc)
		if err == nil {
			break
		}
		c.log.Error("failed to record incident, retrying", zap.Int64("offset", m.Offset), zap.Error(err))
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.log.Warn("operator incident recorded",
		zap.String("kind", string(inc.Kind)),
		zap.String("customer_id", inc.CustomerID),
		zap.String("order_id", inc.OrderID),
		zap.String("payment_reference", inc.PaymentReference),
		zap.String("message", inc.Message))
	return c.commit(ctx, m)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	return nil
}
