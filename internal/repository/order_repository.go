package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// RunInTx runs fn inside a single database transaction. fn returning an error
// rolls back every statement it issued.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx OrderTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&orderTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type orderTx struct {
	tx *sql.Tx
}

func (t *orderTx) LockCart(ctx context.Context, customer domain.CustomerID) ([]domain.CartLine, error) {
	return listCartLines(ctx, t.tx,
		`SELECT `+cartColumns+` FROM cart_items WHERE customer_id = $1 ORDER BY id FOR UPDATE`, customer)
}

func (t *orderTx) OrderExists(ctx context.Context, paymentReference string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE payment_reference = $1)`, paymentReference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order: %w", err)
	}
	return exists, nil
}

func (t *orderTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (id, customer_id, first_name, last_name, address, city, province,
	                              postal_code, phone, total, charged_total, currency, payment_reference, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := t.tx.ExecContext(ctx, query,
		order.ID,
		order.Customer,
		order.Contact.FirstName,
		order.Contact.LastName,
		order.Contact.Address,
		order.Contact.City,
		order.Contact.Province,
		order.Contact.PostalCode,
		order.Contact.Phone,
		order.Total,
		order.ChargedTotal,
		order.Currency,
		order.PaymentReference,
		order.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrDuplicatePayment
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *orderTx) InsertOrderLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine) error {
	for _, line := range lines {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, product_id, product_name, quantity, price)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, line.ProductID, line.ProductName, line.Quantity, line.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (t *orderTx) InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO outbox (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		event.AggregateId, event.EventType, event.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (t *orderTx) ClearLines(ctx context.Context, customer domain.CustomerID, lineIDs []int64) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE customer_id = $1 AND id = ANY($2)`, customer, pq.Array(lineIDs))
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

const orderColumns = `id, customer_id, first_name, last_name, address, city, province, postal_code, phone,
	total, charged_total, currency, payment_reference, created_at`

func scanOrder(row scanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.Customer,
		&o.Contact.FirstName,
		&o.Contact.LastName,
		&o.Contact.Address,
		&o.Contact.City,
		&o.Contact.Province,
		&o.Contact.PostalCode,
		&o.Contact.Phone,
		&o.Total,
		&o.ChargedTotal,
		&o.Currency,
		&o.PaymentReference,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repository) GetOrderByPaymentReference(ctx context.Context, paymentReference string) (*domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, paymentReference)
}

func (r *Repository) getOrder(ctx context.Context, query string, arg any) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if err := r.attachLines(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) ListOrdersByCustomer(ctx context.Context, customer domain.CustomerID) ([]*domain.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`, customer)
}

func (r *Repository) ListAllOrders(ctx context.Context) ([]*domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *Repository) listOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines loads the lines of every order in one query.
func (r *Repository) attachLines(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID.String())
		byID[o.ID] = o
		o.Lines = []domain.OrderLine{}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, price
		 FROM order_lines WHERE order_id = ANY($1::uuid[]) ORDER BY id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.ProductName, &line.Quantity, &line.Price); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		if o, ok := byID[line.OrderID]; ok {
			o.Lines = append(o.Lines, line)
		}
	}
	return rows.Err()
}
