package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fjod/go_storefront/internal/domain"
)

const cartColumns = `id, customer_id, product_id, product_name, quantity, unit_price, added_at`

func scanCartLine(row scanner) (domain.CartLine, error) {
	var line domain.CartLine
	err := row.Scan(
		&line.ID,
		&line.Customer,
		&line.ProductID,
		&line.ProductName,
		&line.Quantity,
		&line.UnitPrice,
		&line.AddedAt,
	)
	return line, err
}

// AddItem creates the line or increments its quantity in a single statement.
// The unit price of an existing line is left untouched.
func (r *Repository) AddItem(ctx context.Context, line *domain.CartLine) (*domain.CartLine, error) {
	query := `INSERT INTO cart_items (customer_id, product_id, product_name, quantity, unit_price)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (customer_id, product_id)
	          DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	          RETURNING ` + cartColumns

	saved, err := scanCartLine(r.db.QueryRowContext(ctx, query,
		line.Customer,
		line.ProductID,
		line.ProductName,
		line.Quantity,
		line.UnitPrice,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}
	return &saved, nil
}

func (r *Repository) RemoveItem(ctx context.Context, customer domain.CustomerID, lineID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND customer_id = $2`, lineID, customer)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM cart_items WHERE id = $1)`, lineID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check cart item: %w", err)
	}
	if exists {
		return fmt.Errorf("cart line %d: %w", lineID, domain.ErrForbidden)
	}
	return fmt.Errorf("cart line %d: %w", lineID, domain.ErrNotFound)
}

func (r *Repository) ListItems(ctx context.Context, customer domain.CustomerID) ([]domain.CartLine, error) {
	return listCartLines(ctx, r.db, `SELECT `+cartColumns+` FROM cart_items WHERE customer_id = $1 ORDER BY id`, customer)
}

func (r *Repository) ClearCart(ctx context.Context, customer domain.CustomerID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE customer_id = $1`, customer); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// AdoptCart moves every line of from into to. Quantities of products present
// in both carts are summed and the target keeps its own price snapshot.
func (r *Repository) AdoptCart(ctx context.Context, from, to domain.CustomerID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cart_items (customer_id, product_id, product_name, quantity, unit_price, added_at)
		 SELECT $2, product_id, product_name, quantity, unit_price, added_at
		 FROM cart_items WHERE customer_id = $1
		 ORDER BY id
		 ON CONFLICT (customer_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		from, to)
	if err != nil {
		return fmt.Errorf("merge cart: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE customer_id = $1`, from); err != nil {
		return fmt.Errorf("delete adopted cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listCartLines(ctx context.Context, q queryer, query string, args ...any) ([]domain.CartLine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}
