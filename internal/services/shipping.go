package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/platform/config"
)

// ErrExcludedPostcode indicates the shipping address lies outside the
// mainland delivery area.
var ErrExcludedPostcode = errors.New("shipping: postcode outside delivery area")

// ShippingPolicy applies the flat-fee rule and the mainland-only postcode
// restriction.
type ShippingPolicy struct {
	flatFee       int64
	freeOver      int64
	excludedAreas map[string]struct{}
}

// NewShippingPolicy builds the policy from configuration.
func NewShippingPolicy(cfg config.ShippingConfig) *ShippingPolicy {
	excluded := make(map[string]struct{}, len(cfg.ExcludedPostAreas))
	for _, area := range cfg.ExcludedPostAreas {
		if trimmed := strings.ToUpper(strings.TrimSpace(area)); trimmed != "" {
			excluded[trimmed] = struct{}{}
		}
	}
	return &ShippingPolicy{
		flatFee:       cfg.FlatFeeMinor,
		freeOver:      cfg.FreeOverMinor,
		excludedAreas: excluded,
	}
}

// Fee returns the shipping charge for a trusted subtotal. Exceeding the free
// threshold or a free-shipping voucher zeroes it.
func (p *ShippingPolicy) Fee(subtotal int64, voucherFreeShipping bool) int64 {
	if voucherFreeShipping {
		return 0
	}
	if p.freeOver > 0 && subtotal > p.freeOver {
		return 0
	}
	return p.flatFee
}

// ValidateMainland rejects addresses whose postcode area is on the excluded
// list. Fulfillment calls this with the processor's captured address, not the
// client's original submission.
func (p *ShippingPolicy) ValidateMainland(addr domain.Address) error {
	if strings.TrimSpace(addr.Postcode) == "" {
		return fmt.Errorf("%w: postcode missing", ErrExcludedPostcode)
	}
	area := addr.PostcodeArea()
	if area == "" {
		return fmt.Errorf("%w: unparseable postcode %q", ErrExcludedPostcode, addr.Postcode)
	}
	if _, excluded := p.excludedAreas[area]; excluded {
		return fmt.Errorf("%w: area %s", ErrExcludedPostcode, area)
	}
	return nil
}
