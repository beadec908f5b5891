// Package publisher relays committed outbox events to Kafka.
package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_storefront/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic     = "storefront-orders"
	batchSize = 100
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes order events written by the materializer. An event is
// marked processed only after Kafka accepted it, so delivery is at least once.
type OutboxPoller struct {
	eventTick time.Duration
	repo      repository.OutboxRepository
	writer    messageWriter
	log       *zap.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, log *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{eventTick: time.Second, repo: repo, writer: w, log: log}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Error("failed to publish outbox event", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark outbox event as processed", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}
		p.log.Debug("outbox event published",
			zap.Int("event_id", event.ID),
			zap.String("event_type", event.EventType),
			zap.String("order_id", event.AggregateId))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // order id
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
