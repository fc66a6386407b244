package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

type productRepository struct {
	db *sql.DB
}

var _ repositories.ProductRepository = (*productRepository)(nil)

const productColumns = `id, slug, name, category, unit_price_minor, currency, created_at, updated_at`

func (r *productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, productID)
	return scanProduct(row, "product.find_by_id")
}

func (r *productRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE slug = $1
	`, slug)
	return scanProduct(row, "product.find_by_slug")
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, repositories.NewUnavailable("product.list", "query products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Slug, &p.Name, &p.Category,
			&p.UnitPrice, &p.Currency, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func scanProduct(row *sql.Row, op string) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Category,
		&p.UnitPrice, &p.Currency, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, repositories.NewNotFound(op, "product not found", err)
		}
		return domain.Product{}, repositories.NewUnavailable(op, "select product", err)
	}
	return p, nil
}
