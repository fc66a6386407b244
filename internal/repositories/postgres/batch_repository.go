package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

type batchRepository struct {
	db *sql.DB
}

var _ repositories.BatchRepository = (*batchRepository)(nil)

// ListAllocatable returns live batches with stock for a product, oldest first.
func (r *batchRepository) ListAllocatable(ctx context.Context, productID string) ([]domain.Batch, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, stock_quantity, status, received_at, updated_at
		FROM batches
		WHERE product_id = $1
		  AND status = $2
		  AND stock_quantity > 0
		ORDER BY received_at ASC, id ASC
	`, productID, string(domain.BatchStatusLive))
	if err != nil {
		return nil, repositories.NewUnavailable("batch.list_allocatable", "query batches", err)
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0)
	for rows.Next() {
		var b domain.Batch
		var status string
		if err := rows.Scan(&b.ID, &b.ProductID, &b.StockQuantity, &status, &b.ReceivedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		b.Status = domain.BatchStatus(status)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch rows: %w", err)
	}
	return batches, nil
}

// DecrementStock lowers the batch quantity from expected to next, committing
// only if the stored quantity still equals expected. A zero-row update means
// another allocation got there first and surfaces as a conflict.
func (r *batchRepository) DecrementStock(ctx context.Context, batchID string, expected int, next int, now time.Time) error {
	if next < 0 || next > expected {
		return repositories.NewConflict("batch.decrement_stock", "invalid quantity transition", nil)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE batches
		SET stock_quantity = $1,
		    updated_at = $2
		WHERE id = $3
		  AND stock_quantity = $4
	`, next, now, batchID, expected)
	if err != nil {
		return repositories.NewUnavailable("batch.decrement_stock", "update batch", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.batchExists(ctx, batchID)
		if err != nil {
			return err
		}
		if !exists {
			return repositories.NewNotFound("batch.decrement_stock", "batch not found", nil)
		}
		return repositories.NewConflict("batch.decrement_stock", "stock quantity changed concurrently", nil)
	}
	return nil
}

func (r *batchRepository) batchExists(ctx context.Context, batchID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM batches WHERE id = $1`, batchID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check batch exists: %w", err)
}
