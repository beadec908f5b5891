// Package incident records operator alerts so they can be followed up after
// the Kafka retention window has passed.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/alert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const retention = 90 * 24 * time.Hour

var ErrInvalidIncident = errors.New("invalid incident")

// Incident is the stored form of an alert. Amounts are kept as strings so
// they survive the round trip without floating point loss.
type Incident struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Source           string             `bson:"source" json:"source"`
	Kind             alert.Kind         `bson:"kind" json:"kind"`
	CustomerID       string             `bson:"customer_id" json:"customer_id"`
	OrderID          string             `bson:"order_id,omitempty" json:"order_id,omitempty"`
	PaymentReference string             `bson:"payment_reference,omitempty" json:"payment_reference,omitempty"`
	Expected         string             `bson:"expected,omitempty" json:"expected,omitempty"`
	Actual           string             `bson:"actual,omitempty" json:"actual,omitempty"`
	Message          string             `bson:"message" json:"message"`
	RaisedAt         time.Time          `bson:"raised_at" json:"raised_at"`
	RecordedAt       time.Time          `bson:"recorded_at" json:"recorded_at"`
}

// FromAlert converts a for storage. source identifies the message it came
// from and makes redelivered messages collapse into one incident.
func FromAlert(a alert.Alert, source string) *Incident {
	inc := &Incident{
		Source:           source,
		Kind:             a.Kind,
		CustomerID:       string(a.Customer),
		OrderID:          a.OrderID,
		PaymentReference: a.PaymentReference,
		Message:          a.Message,
		RaisedAt:         a.RaisedAt,
	}
	if a.Expected != nil {
		inc.Expected = a.Expected.StringFixed(2)
	}
	if a.Actual != nil {
		inc.Actual = a.Actual.StringFixed(2)
	}
	return inc
}

type Filter struct {
	Kind  alert.Kind
	Limit int64
}

type Store interface {
	Record(ctx context.Context, inc *Incident) error
	List(ctx context.Context, f Filter) ([]Incident, error)
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("incidents")}
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}, {Key: "raised_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "recorded_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Record stores inc once per source.
func (m *MongoStore) Record(ctx context.Context, inc *Incident) error {
	if inc.Source == "" || inc.Kind == "" {
		return fmt.Errorf("%w: source and kind are required", ErrInvalidIncident)
	}
	if inc.RecordedAt.IsZero() {
		inc.RecordedAt = time.Now().UTC()
	}

	filter := bson.M{"source": inc.Source}
	update := bson.M{"$setOnInsert": inc}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to record incident: %w", err)
	}
	return nil
}

// List returns the newest incidents first.
func (m *MongoStore) List(ctx context.Context, f Filter) ([]Incident, error) {
	filter := bson.M{}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.D{{Key: "raised_at", Value: -1}}).SetLimit(limit)

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer cursor.Close(ctx)

	incidents := []Incident{}
	if err := cursor.All(ctx, &incidents); err != nil {
		return nil, fmt.Errorf("failed to decode incidents: %w", err)
	}
	return incidents, nil
}
