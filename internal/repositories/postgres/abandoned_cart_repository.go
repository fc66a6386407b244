package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

type abandonedCartRepository struct {
	db *sql.DB
}

var _ repositories.AbandonedCartRepository = (*abandonedCartRepository)(nil)

func (r *abandonedCartRepository) Upsert(ctx context.Context, cart domain.AbandonedCart) (domain.AbandonedCart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO abandoned_carts (id, email, converted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    converted = EXCLUDED.converted,
		    updated_at = EXCLUDED.updated_at
	`, cart.ID, cart.Email, cart.Converted, cart.CreatedAt, cart.UpdatedAt)
	if err != nil {
		return domain.AbandonedCart{}, repositories.NewUnavailable("abandoned_cart.upsert", "upsert cart", err)
	}
	return cart, nil
}

// MarkConvertedByEmail closes every open cart for the email and reports how
// many were converted.
func (r *abandonedCartRepository) MarkConvertedByEmail(ctx context.Context, email string, now time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE abandoned_carts
		SET converted = TRUE,
		    updated_at = $1
		WHERE lower(email) = lower($2)
		  AND NOT converted
	`, now, email)
	if err != nil {
		return 0, repositories.NewUnavailable("abandoned_cart.mark_converted", "update carts", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}
