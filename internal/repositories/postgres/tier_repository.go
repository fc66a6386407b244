package postgres

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

type volumeTierRepository struct {
	db *sql.DB
}

var _ repositories.VolumeTierRepository = (*volumeTierRepository)(nil)

func (r *volumeTierRepository) ListActive(ctx context.Context) ([]domain.VolumeDiscountTier, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, min_quantity, discount_percent, active, created_at
		FROM volume_discount_tiers
		WHERE active
		ORDER BY min_quantity ASC, id ASC
	`)
	if err != nil {
		return nil, repositories.NewUnavailable("volume_tier.list_active", "query tiers", err)
	}
	defer rows.Close()

	tiers := make([]domain.VolumeDiscountTier, 0)
	for rows.Next() {
		var tier domain.VolumeDiscountTier
		if err := rows.Scan(&tier.ID, &tier.MinQuantity, &tier.DiscountPercent, &tier.Active, &tier.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tier row: %w", err)
		}
		tiers = append(tiers, tier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tier rows: %w", err)
	}
	return tiers, nil
}
