package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

// VoucherRepository keeps vouchers in memory keyed by lowercase code.
type VoucherRepository struct {
	mu       sync.Mutex
	vouchers map[string]domain.Voucher
}

func NewVoucherRepository() *VoucherRepository {
	return &VoucherRepository{vouchers: map[string]domain.Voucher{}}
}

// Seed replaces the stored voucher set.
func (r *VoucherRepository) Seed(vouchers ...domain.Voucher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vouchers = make(map[string]domain.Voucher, len(vouchers))
	for _, v := range vouchers {
		r.vouchers[strings.ToLower(v.Code)] = v
	}
}

func (r *VoucherRepository) FindByCode(_ context.Context, code string) (domain.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	voucher, ok := r.vouchers[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return domain.Voucher{}, repositories.NewNotFound("voucher.find_by_code", "voucher not found", nil)
	}
	return voucher, nil
}

func (r *VoucherRepository) IncrementUsage(_ context.Context, code string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(code))
	voucher, ok := r.vouchers[key]
	if !ok {
		return repositories.NewNotFound("voucher.increment_usage", "voucher not found", nil)
	}
	if voucher.MaxGlobalUses > 0 && voucher.UsedCount >= voucher.MaxGlobalUses {
		return repositories.NewConflict("voucher.increment_usage", "voucher use limit exhausted", nil)
	}
	voucher.UsedCount++
	voucher.UpdatedAt = now
	r.vouchers[key] = voucher
	return nil
}
