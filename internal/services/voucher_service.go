package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

// ErrVoucherUnavailable indicates the voucher store could not be reached.
var ErrVoucherUnavailable = errors.New("voucher: unavailable")

// VoucherServiceDeps wires the dependencies required by the voucher service.
type VoucherServiceDeps struct {
	Vouchers repositories.VoucherRepository
	Clock    func() time.Time
	Logger   Logger
}

type voucherService struct {
	vouchers repositories.VoucherRepository
	now      func() time.Time
	logger   Logger
}

// NewVoucherService constructs a VoucherService validating required dependencies.
func NewVoucherService(deps VoucherServiceDeps) (VoucherService, error) {
	if deps.Vouchers == nil {
		return nil, errors.New("voucher service: voucher repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &voucherService{
		vouchers: deps.Vouchers,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Check validates a code against activation, scheduling window, and global
// usage ceiling. Cart-dependent rules (min spend, whitelist, quota) live in
// the pricing engine and checkout service.
func (s *voucherService) Check(ctx context.Context, code string) (VoucherCheckResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return rejection(domain.Voucher{}, domain.VoucherRejectionCodeNotFound), nil
	}

	voucher, err := s.vouchers.FindByCode(ctx, code)
	if err != nil {
		if repositories.IsNotFound(err) {
			s.logger(ctx, "voucher.check_rejected", map[string]any{
				"code":   code,
				"reason": string(domain.VoucherRejectionCodeNotFound),
			})
			return rejection(domain.Voucher{}, domain.VoucherRejectionCodeNotFound), nil
		}
		return VoucherCheckResult{}, fmt.Errorf("%w: %v", ErrVoucherUnavailable, err)
	}

	now := s.now()
	var reason domain.VoucherRejection
	switch {
	case !voucher.Active:
		reason = domain.VoucherRejectionDisabled
	case voucher.StartDate != nil && now.Before(*voucher.StartDate):
		reason = domain.VoucherRejectionPending
	case voucher.Expiry() != nil && now.After(*voucher.Expiry()):
		reason = domain.VoucherRejectionExpired
	case voucher.MaxGlobalUses > 0 && voucher.UsedCount >= voucher.MaxGlobalUses:
		reason = domain.VoucherRejectionUseLimitReached
	}

	if reason != "" {
		s.logger(ctx, "voucher.check_rejected", map[string]any{
			"code":   voucher.Code,
			"reason": string(reason),
		})
		return rejection(voucher, reason), nil
	}

	return VoucherCheckResult{
		Valid:   true,
		Voucher: voucher,
		Type:    voucher.ResolveType(),
		Value:   voucher.Value(),
	}, nil
}

func rejection(voucher domain.Voucher, reason domain.VoucherRejection) VoucherCheckResult {
	return VoucherCheckResult{
		Valid:   false,
		Reason:  reason,
		Voucher: voucher,
		Type:    voucher.ResolveType(),
		Value:   voucher.Value(),
	}
}
