package services

import (
	"context"
	"time"

	domain "github.com/cellforge/api/internal/domain"
)

// Logger is the event logging hook services receive; a no-op default is
// substituted when absent.
type Logger func(ctx context.Context, event string, fields map[string]any)

// ResolvedItem is a cart line bound to its trusted catalog record. The
// quantity is the client's claim; everything else comes from the catalog.
type ResolvedItem struct {
	Product  domain.Product
	Quantity int
}

// ProductPrice is the advisory price/stock snapshot served to polling clients.
type ProductPrice struct {
	ProductID string
	Slug      string
	Name      string
	UnitPrice int64
	Currency  string
	LiveStock int
}

// CatalogService maps untrusted item references onto trusted product records.
type CatalogService interface {
	ResolveCart(ctx context.Context, lines []domain.CartLine) ([]ResolvedItem, error)
	ListPrices(ctx context.Context, refs []string) ([]ProductPrice, error)
}

// VoucherCheckResult reports the outcome of a stateless voucher eligibility check.
type VoucherCheckResult struct {
	Valid   bool
	Reason  domain.VoucherRejection
	Voucher domain.Voucher
	Type    domain.VoucherType
	Value   int64
}

// VoucherService validates voucher codes independently of any cart.
type VoucherService interface {
	Check(ctx context.Context, code string) (VoucherCheckResult, error)
}

// PricedLine is one cart line after tier and voucher resolution.
type PricedLine struct {
	Product         domain.Product
	Quantity        int
	BaseUnitPrice   int64
	TierPercent     int
	TierUnitPrice   int64
	DiscountedUnits int
	UnitPrice       int64 // blended final unit price
	Remainder       int64 // sub-unit minor amount lost to blending
	LineTotal       int64
}

// PricingResult carries the discount-resolved cart.
type PricingResult struct {
	Lines        []PricedLine
	TierSubtotal int64 // after tier discounts, before voucher effects
	Total        int64 // sum of line totals after per-line voucher savings
	FlatDiscount int64 // accumulated FIXED voucher amount, distributed later
	FreeShipping bool
	MinSpendMet  bool
	VoucherCode  string
}

// BuildSessionCommand is the checkout build request after handler decoding.
type BuildSessionCommand struct {
	Items       []domain.CartLine
	Email       string
	Shipping    domain.Address
	VoucherCode string
}

// CheckoutSessionResult returns the PSP redirect for a built checkout session.
type CheckoutSessionResult struct {
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
	TotalMinor  int64
	ShippingFee int64
	Remainder   int64
}

// CheckoutService derives trusted prices and opens a PSP checkout session.
type CheckoutService interface {
	BuildSession(ctx context.Context, cmd BuildSessionCommand) (CheckoutSessionResult, error)
}

// ConfirmResult reports the outcome of fulfilling a payment session.
type ConfirmResult struct {
	Order         domain.Order
	AlreadyExists bool
	Refunded      bool
	FailureReason string
}

// FulfillmentService materializes orders once per completed payment session.
type FulfillmentService interface {
	Confirm(ctx context.Context, sessionID string) (ConfirmResult, error)
}
