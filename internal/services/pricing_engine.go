package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

// ErrPricingUnavailable indicates the discount tier store could not be reached.
var ErrPricingUnavailable = errors.New("pricing: unavailable")

// PricingEngineDeps wires the dependencies required by the pricing engine.
type PricingEngineDeps struct {
	Tiers  repositories.VolumeTierRepository
	Logger Logger
}

// PricingEngine derives each line's final unit price from the trusted catalog
// price, the matching volume tier, and the voucher effect. Client-claimed
// prices never enter here.
type PricingEngine struct {
	tiers  repositories.VolumeTierRepository
	logger Logger
}

// NewPricingEngine constructs a PricingEngine validating required dependencies.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Tiers == nil {
		return nil, errors.New("pricing engine: tier repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{
		tiers:  deps.Tiers,
		logger: logger,
	}, nil
}

// Price resolves tier and voucher discounts for the cart. A nil voucher prices
// tiers only. FIXED voucher amounts are accumulated cart-wide in FlatDiscount,
// not subtracted from any line here.
func (e *PricingEngine) Price(ctx context.Context, items []ResolvedItem, voucher *domain.Voucher) (PricingResult, error) {
	if len(items) == 0 {
		return PricingResult{}, fmt.Errorf("%w: no items to price", ErrCatalogInvalidInput)
	}

	tiers, err := e.tiers.ListActive(ctx)
	if err != nil {
		return PricingResult{}, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}

	result := PricingResult{
		Lines:       make([]PricedLine, 0, len(items)),
		MinSpendMet: true,
	}

	for _, item := range items {
		pct := selectTierPercent(tiers, item.Quantity)
		tierUnit := item.Product.UnitPrice * int64(100-pct) / 100
		line := PricedLine{
			Product:       item.Product,
			Quantity:      item.Quantity,
			BaseUnitPrice: item.Product.UnitPrice,
			TierPercent:   pct,
			TierUnitPrice: tierUnit,
			UnitPrice:     tierUnit,
			LineTotal:     tierUnit * int64(item.Quantity),
		}
		result.Lines = append(result.Lines, line)
		result.TierSubtotal += line.LineTotal
	}

	if voucher == nil {
		result.Total = result.TierSubtotal
		return result, nil
	}

	result.VoucherCode = voucher.Code
	result.FreeShipping = voucher.FreeShipping
	if voucher.MinSpend > result.TierSubtotal {
		result.MinSpendMet = false
		result.Total = result.TierSubtotal
		return result, nil
	}

	voucherType := voucher.ResolveType()
	value := voucher.Value()

	// Running per-cart quota: eligible units are consumed in cart order, a
	// policy choice rather than an optimal allocation.
	remainingQuota := voucher.MaxUsagePerCart
	limited := remainingQuota > 0

	for i := range result.Lines {
		line := &result.Lines[i]
		if !voucher.AppliesToProduct(line.Product) {
			result.Total += line.LineTotal
			continue
		}

		if voucherType == domain.VoucherTypeFixed {
			if result.FlatDiscount == 0 {
				result.FlatDiscount = value
			}
			result.Total += line.LineTotal
			continue
		}

		var perUnitSaving int64
		switch voucherType {
		case domain.VoucherTypePercent:
			perUnitSaving = line.TierUnitPrice * value / 100
		case domain.VoucherTypeFixedPrice:
			if line.TierUnitPrice > value {
				perUnitSaving = line.TierUnitPrice - value
			}
		}

		eligible := line.Quantity
		if limited {
			if remainingQuota <= 0 {
				result.Total += line.LineTotal
				continue
			}
			if eligible > remainingQuota {
				eligible = remainingQuota
			}
			remainingQuota -= eligible
		}

		savings := perUnitSaving * int64(eligible)
		line.DiscountedUnits = eligible
		line.LineTotal -= savings
		line.UnitPrice = line.LineTotal / int64(line.Quantity)
		line.Remainder = line.LineTotal - line.UnitPrice*int64(line.Quantity)
		result.Total += line.LineTotal
	}

	e.logger(ctx, "pricing.cart_priced", map[string]any{
		"lines":        len(result.Lines),
		"tierSubtotal": result.TierSubtotal,
		"total":        result.Total,
		"voucher":      result.VoucherCode,
		"flatDiscount": result.FlatDiscount,
	})
	return result, nil
}

// selectTierPercent picks the active tier with the largest min_quantity at or
// below the quantity. Tiers never stack.
func selectTierPercent(tiers []domain.VolumeDiscountTier, quantity int) int {
	best := -1
	percent := 0
	for _, tier := range tiers {
		if !tier.Active || tier.MinQuantity > quantity {
			continue
		}
		if tier.MinQuantity > best {
			best = tier.MinQuantity
			percent = tier.DiscountPercent
		}
	}
	return percent
}
