package domain

import (
	"strings"
	"time"
)

// VoucherType tags the discount strategy a voucher applies.
type VoucherType string

const (
	// VoucherTypePercent discounts each eligible unit by a percentage of its
	// current (tier-discounted) price.
	VoucherTypePercent VoucherType = "percent"
	// VoucherTypeFixed subtracts a flat amount from the cart total.
	VoucherTypeFixed VoucherType = "fixed"
	// VoucherTypeFixedPrice pins each eligible unit to the voucher value,
	// never raising the price.
	VoucherTypeFixedPrice VoucherType = "fixed_price"
)

// Voucher is a redeemable discount code. Codes match case-insensitively.
// Legacy records may lack an explicit Type and may carry their expiry under
// either ExpiryDate or ExpiresAt; both fields are consulted.
type Voucher struct {
	ID              string
	Code            string
	Type            VoucherType // empty on legacy records
	DiscountPercent int64
	DiscountAmount  int64 // minor units
	Active          bool
	MinSpend        int64 // minor units, against the tier-discounted subtotal
	ProductIDs      []string
	MaxUsagePerCart int // unit-quantity cap across the whole cart; 0 = unlimited
	MaxGlobalUses   int // 0 = unlimited
	UsedCount       int
	StartDate       *time.Time
	ExpiryDate      *time.Time
	ExpiresAt       *time.Time // legacy synonym for ExpiryDate
	FreeShipping    bool
	FirstOrderOnly  bool
	AllowedEmails   []string // nil = public
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ResolveType returns the explicit type when set. Untyped legacy records
// infer percent when DiscountPercent > 0 and fixed otherwise. A percent
// voucher configured with 0% is therefore misread as fixed; the rule is kept
// deliberately, matching how stored records have always been interpreted.
func (v Voucher) ResolveType() VoucherType {
	if v.Type != "" {
		return v.Type
	}
	if v.DiscountPercent > 0 {
		return VoucherTypePercent
	}
	return VoucherTypeFixed
}

// Value derives the scalar discount value for the resolved type: the percent
// for percent vouchers, the amount in minor units otherwise.
func (v Voucher) Value() int64 {
	if v.ResolveType() == VoucherTypePercent {
		return v.DiscountPercent
	}
	return v.DiscountAmount
}

// Expiry returns the effective expiry instant. Both the canonical and the
// legacy field are consulted; when both are set the earlier one wins, so a
// stale legacy value can never extend a voucher past its canonical expiry.
func (v Voucher) Expiry() *time.Time {
	if v.ExpiryDate == nil {
		return v.ExpiresAt
	}
	if v.ExpiresAt != nil && v.ExpiresAt.Before(*v.ExpiryDate) {
		return v.ExpiresAt
	}
	return v.ExpiryDate
}

// AppliesToProduct reports whether the product passes the voucher's
// whitelist. An empty whitelist admits every product. Matching is
// case-insensitive against the product's id, slug, and name.
func (v Voucher) AppliesToProduct(p Product) bool {
	if len(v.ProductIDs) == 0 {
		return true
	}
	for _, entry := range v.ProductIDs {
		if strings.EqualFold(entry, p.ID) || strings.EqualFold(entry, p.Slug) || strings.EqualFold(entry, p.Name) {
			return true
		}
	}
	return false
}

// EmailAllowed reports whether the email may redeem the voucher. A nil
// allow-list means the voucher is public.
func (v Voucher) EmailAllowed(email string) bool {
	if len(v.AllowedEmails) == 0 {
		return true
	}
	for _, allowed := range v.AllowedEmails {
		if strings.EqualFold(strings.TrimSpace(allowed), strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}

// VoucherRejection enumerates the reason codes a voucher check can fail with.
// These surface to the client pre-payment; checkout proceeds without the
// voucher when the caller chooses to.
type VoucherRejection string

const (
	VoucherRejectionCodeNotFound    VoucherRejection = "CODE_NOT_FOUND"
	VoucherRejectionDisabled        VoucherRejection = "VOUCHER_DISABLED"
	VoucherRejectionPending         VoucherRejection = "VOUCHER_PENDING"
	VoucherRejectionExpired         VoucherRejection = "VOUCHER_EXPIRED"
	VoucherRejectionUseLimitReached VoucherRejection = "USE_LIMIT_REACHED"
	VoucherRejectionMinSpendNotMet  VoucherRejection = "MIN_SPEND_NOT_MET"
	VoucherRejectionNotEligible     VoucherRejection = "VOUCHER_NOT_ELIGIBLE"
)
