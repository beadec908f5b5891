package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/repository"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

type MockRepository struct {
	m            sync.Mutex
	OutboxEvents []*repository.OutboxEvent
	GetErr       error
	MarkErr      error
	ProcessedIDs []int
}

func (r *MockRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	processed := map[int]bool{}
	for _, id := range r.ProcessedIDs {
		processed[id] = true
	}
	var events []*repository.OutboxEvent
	for _, e := range r.OutboxEvents {
		if !processed[e.ID] && len(events) < limit {
			events = append(events, e)
		}
	}
	return events, nil
}

func (r *MockRepository) MarkEventAsProcessed(_ context.Context, id int) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.MarkErr != nil {
		return r.MarkErr
	}
	r.ProcessedIDs = append(r.ProcessedIDs, id)
	return nil
}

func (r *MockRepository) processed() []int {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]int(nil), r.ProcessedIDs...)
}

type mockWriter struct {
	m        sync.Mutex
	messages []kafkaGo.Message
	failKey  string
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	for _, msg := range msgs {
		if string(msg.Key) == w.failKey {
			return errors.New("leader not available")
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error { return nil }

func event(id int, orderID string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:          id,
		AggregateId: orderID,
		EventType:   "order.created",
		Payload:     json.RawMessage(fmt.Sprintf(`{"order_id":%q,"customer_id":"bob"}`, orderID)),
		CreatedAt:   time.Now(),
	}
}

func newTestPoller(repo repository.OutboxRepository, w messageWriter) *OutboxPoller {
	return &OutboxPoller{eventTick: 10 * time.Millisecond, repo: repo, writer: w, log: zap.NewNop()}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "order-1"), event(2, "order-2")}}
	w := &mockWriter{}

	newTestPoller(repo, w).processUnpublishedEvents(context.Background())

	assert.Equal(t, []int{1, 2}, repo.processed())
	require.Len(t, w.messages, 2)
	assert.Equal(t, "order-1", string(w.messages[0].Key))
	assert.Equal(t, "event_type", w.messages[0].Headers[0].Key)
	assert.Equal(t, "order.created", string(w.messages[0].Headers[0].Value))
}

func TestProcessUnpublishedEvents_PublishFailureLeavesEventPending(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "order-1"), event(2, "order-2")}}
	w := &mockWriter{failKey: "order-1"}
	p := newTestPoller(repo, w)

	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int{2}, repo.processed())

	w.failKey = ""
	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int{2, 1}, repo.processed())
}

func TestProcessUnpublishedEvents_RepositoryError(t *testing.T) {
	repo := &MockRepository{GetErr: errors.New("database connection error")}
	w := &mockWriter{}

	newTestPoller(repo, w).processUnpublishedEvents(context.Background())

	assert.Empty(t, w.messages)
	assert.Empty(t, repo.processed())
}

func TestProcessUnpublishedEvents_MarkFailureIsRetried(t *testing.T) {
	repo := &MockRepository{
		OutboxEvents: []*repository.OutboxEvent{event(1, "order-1")},
		MarkErr:      errors.New("database deadlock"),
	}
	w := &mockWriter{}
	p := newTestPoller(repo, w)

	p.processUnpublishedEvents(context.Background())
	assert.Empty(t, repo.processed())

	repo.m.Lock()
	repo.MarkErr = nil
	repo.m.Unlock()
	p.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int{1}, repo.processed())
	assert.Len(t, w.messages, 2)
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "order-1")}}
	p := newTestPoller(repo, &mockWriter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(repo.processed()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, Topic)
	time.Sleep(5 * time.Second)

	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "order-123")}}

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        Topic,
		Balancer:     &kafkaGo.Hash{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	defer writer.Close()

	poller := &OutboxPoller{eventTick: time.Second, repo: repo, writer: writer, log: zap.NewNop()}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    Topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-123", string(msg.Key))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order-123", payload["order_id"])
	assert.Eventually(t, func() bool { return len(repo.processed()) == 1 }, 5*time.Second, 100*time.Millisecond)
}
