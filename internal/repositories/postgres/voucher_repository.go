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

type voucherRepository struct {
	db *sql.DB
}

var _ repositories.VoucherRepository = (*voucherRepository)(nil)

// FindByCode matches codes case-insensitively.
func (r *voucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		v             domain.Voucher
		voucherType   string
		productIDs    []byte
		allowedEmails []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, type, discount_percent, discount_amount_minor, active,
		       min_spend_minor, product_ids, max_usage_per_cart, max_global_uses,
		       used_count, start_date, expiry_date, expires_at, free_shipping,
		       first_order_only, allowed_emails, created_at, updated_at
		FROM vouchers
		WHERE lower(code) = lower($1)
	`, code).Scan(
		&v.ID, &v.Code, &voucherType, &v.DiscountPercent, &v.DiscountAmount, &v.Active,
		&v.MinSpend, &productIDs, &v.MaxUsagePerCart, &v.MaxGlobalUses,
		&v.UsedCount, &v.StartDate, &v.ExpiryDate, &v.ExpiresAt, &v.FreeShipping,
		&v.FirstOrderOnly, &allowedEmails, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Voucher{}, repositories.NewNotFound("voucher.find_by_code", "voucher not found", err)
		}
		return domain.Voucher{}, repositories.NewUnavailable("voucher.find_by_code", "select voucher", err)
	}

	v.Type = domain.VoucherType(voucherType)
	if len(productIDs) > 0 {
		if err := json.Unmarshal(productIDs, &v.ProductIDs); err != nil {
			return domain.Voucher{}, fmt.Errorf("decode voucher product ids: %w", err)
		}
	}
	if len(allowedEmails) > 0 {
		if err := json.Unmarshal(allowedEmails, &v.AllowedEmails); err != nil {
			return domain.Voucher{}, fmt.Errorf("decode voucher allowed emails: %w", err)
		}
	}
	return v, nil
}

// IncrementUsage bumps the global use counter, refusing to pass the cap when
// one is configured.
func (r *voucherRepository) IncrementUsage(ctx context.Context, code string, now time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE vouchers
		SET used_count = used_count + 1,
		    updated_at = $1
		WHERE lower(code) = lower($2)
		  AND (max_global_uses <= 0 OR used_count < max_global_uses)
	`, now, code)
	if err != nil {
		return repositories.NewUnavailable("voucher.increment_usage", "update voucher", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := r.db.QueryRowContext(ctx, `SELECT id FROM vouchers WHERE lower(code) = lower($1)`, code).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return repositories.NewNotFound("voucher.increment_usage", "voucher not found", err)
		}
		if err != nil {
			return fmt.Errorf("check voucher exists: %w", err)
		}
		return repositories.NewConflict("voucher.increment_usage", "voucher use limit exhausted", nil)
	}
	return nil
}
