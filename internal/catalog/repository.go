package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Repository is the read-only product catalog.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite serializes writers anyway; a single connection keeps ":memory:" usable
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const productColumns = `p.id, p.category_id, p.name, p.description, p.price, p.photo, p.created_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	var description, photo sql.NullString
	err := row.Scan(
		&p.ID,
		&p.CategoryID,
		&p.Name,
		&description,
		&p.Price,
		&photo,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Photo = photo.String
	return p, nil
}

func (r *Repository) FindProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = ?`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (r *Repository) CurrentPrice(ctx context.Context, id int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT price FROM products WHERE id = ?`, id).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query price: %w", err)
	}
	return price, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []*domain.Category
	for rows.Next() {
		c := &domain.Category{}
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

func (r *Repository) ListProductsByCategory(ctx context.Context, category string) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE c.name = ?
		ORDER BY p.name
	`

	rows, err := r.db.QueryContext(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
