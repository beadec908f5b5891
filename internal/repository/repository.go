package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Repository struct {
	db *sql.DB
}

type CartRepository interface {
	AddItem(ctx context.Context, line *domain.CartLine) (*domain.CartLine, error)
	RemoveItem(ctx context.Context, customer domain.CustomerID, lineID int64) error
	ListItems(ctx context.Context, customer domain.CustomerID) ([]domain.CartLine, error)
	ClearCart(ctx context.Context, customer domain.CustomerID) error
	AdoptCart(ctx context.Context, from, to domain.CustomerID) error
}

// OrderTx is the unit of work handed to RunInTx. Everything done through it
// commits or rolls back together.
type OrderTx interface {
	LockCart(ctx context.Context, customer domain.CustomerID) ([]domain.CartLine, error)
	OrderExists(ctx context.Context, paymentReference string) (bool, error)
	InsertOrder(ctx context.Context, order *domain.Order) error
	InsertOrderLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine) error
	InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error
	// ClearLines deletes the listed lines of the customer's cart. Lines added
	// after LockCart are left in place.
	ClearLines(ctx context.Context, customer domain.CustomerID, lineIDs []int64) error
}

type OrderRepository interface {
	RunInTx(ctx context.Context, fn func(tx OrderTx) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByPaymentReference(ctx context.Context, paymentReference string) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customer domain.CustomerID) ([]*domain.Order, error)
	ListAllOrders(ctx context.Context) ([]*domain.Order, error)
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
}

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

// NewRepositoryWithDB wraps an already opened handle.
func NewRepositoryWithDB(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}
