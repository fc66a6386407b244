package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

type orderRepository struct {
	db *sql.DB
}

var _ repositories.OrderRepository = (*orderRepository)(nil)

const orderColumns = `id, session_id, email, status, currency, total_minor,
	shipping_line1, shipping_line2, shipping_city, shipping_postcode, shipping_country,
	metadata, created_at, updated_at`

// Insert writes the order header and its lines in one transaction. A second
// insert carrying an already-claimed session id surfaces as a conflict, which
// callers resolve by fetching the existing order.
func (r *orderRepository) Insert(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var metadata []byte
	if len(order.Metadata) > 0 {
		metadata, err = json.Marshal(order.Metadata)
		if err != nil {
			return fmt.Errorf("encode order metadata: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollbackOnErr(tx, &err)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, session_id, email, status, currency, total_minor,
			shipping_line1, shipping_line2, shipping_city, shipping_postcode, shipping_country,
			metadata, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		order.ID, order.SessionID, order.Email, string(order.Status), order.Currency, order.TotalMinor,
		order.Shipping.Line1, order.Shipping.Line2, order.Shipping.City, order.Shipping.Postcode, order.Shipping.Country,
		metadata, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repositories.NewConflict("order.insert", "session already materialized", err)
		}
		return repositories.NewUnavailable("order.insert", "insert order", err)
	}

	for i, line := range order.Lines {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, position, product_id, name, quantity, unit_amount_minor)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, i, line.ProductID, line.Name, line.Quantity, line.UnitAmount); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, orderID)
	return r.scanAndLoad(ctx, row, "order.find_by_id")
}

func (r *orderRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE session_id = $1
	`, sessionID)
	return r.scanAndLoad(ctx, row, "order.find_by_session_id")
}

// UpdateStatus moves the order to status, guarding the transition against the
// current stored state. The update predicates on the status it validated, so
// a concurrent writer surfaces as a conflict instead of a silent overwrite.
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	current, err := r.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !current.Status.CanTransition(status) {
		return domain.Order{}, repositories.NewConflict("order.update_status",
			fmt.Sprintf("order cannot move from %s to %s", current.Status, status), nil)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    updated_at = $2
		WHERE id = $3
		  AND status = $4
	`, string(status), now, orderID, string(current.Status))
	if err != nil {
		return domain.Order{}, repositories.NewUnavailable("order.update_status", "update order", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Order{}, repositories.NewConflict("order.update_status", "order status changed concurrently", nil)
	}
	return r.FindByID(ctx, orderID)
}

func (r *orderRepository) ListByEmail(ctx context.Context, email string, limit int) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE lower(email) = lower($1)
		ORDER BY created_at DESC, id DESC
	`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", email, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, email)
	}
	if err != nil {
		return nil, repositories.NewUnavailable("order.list_by_email", "query orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		lines, err := r.loadLines(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Lines = lines
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) scanAndLoad(ctx context.Context, row *sql.Row, op string) (domain.Order, error) {
	order, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, repositories.NewNotFound(op, "order not found", err)
		}
		return domain.Order{}, repositories.NewUnavailable(op, "select order", err)
	}
	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return order, nil
}

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var (
		order    domain.Order
		status   string
		metadata []byte
	)
	err := scan(
		&order.ID, &order.SessionID, &order.Email, &status, &order.Currency, &order.TotalMinor,
		&order.Shipping.Line1, &order.Shipping.Line2, &order.Shipping.City, &order.Shipping.Postcode, &order.Shipping.Country,
		&metadata, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &order.Metadata); err != nil {
			return domain.Order{}, fmt.Errorf("decode order metadata: %w", err)
		}
	}
	return order, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, quantity, unit_amount_minor
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.UnitAmount); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}
