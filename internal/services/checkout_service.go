package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/payments"
	"github.com/cellforge/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// VoucherRejectedError reports a voucher that cannot be honoured for this
// cart. Non-fatal for the customer: retrying without the code succeeds.
type VoucherRejectedError struct {
	Code   string
	Reason domain.VoucherRejection
}

// Error implements the error interface.
func (e *VoucherRejectedError) Error() string {
	return fmt.Sprintf("checkout: voucher %q rejected: %s", e.Code, e.Reason)
}

// checkoutSessionManager abstracts payments.Manager for easier testing.
type checkoutSessionManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Catalog        CatalogService
	Vouchers       VoucherService
	Pricing        *PricingEngine
	Shipping       *ShippingPolicy
	Payments       checkoutSessionManager
	Orders         repositories.OrderRepository
	AbandonedCarts repositories.AbandonedCartRepository
	SuccessURL     string
	CancelURL      string
	Currency       string
	Clock          func() time.Time
	Logger         Logger
	IDGenerator    func() string
}

type checkoutService struct {
	catalog        CatalogService
	vouchers       VoucherService
	pricing        *PricingEngine
	shipping       *ShippingPolicy
	payments       checkoutSessionManager
	orders         repositories.OrderRepository
	abandonedCarts repositories.AbandonedCartRepository
	successURL     string
	cancelURL      string
	currency       string
	now            func() time.Time
	logger         Logger
	idGen          func() string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog service is required")
	}
	if deps.Vouchers == nil {
		return nil, errors.New("checkout service: voucher service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("checkout service: shipping policy is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if strings.TrimSpace(deps.SuccessURL) == "" || strings.TrimSpace(deps.CancelURL) == "" {
		return nil, errors.New("checkout service: success and cancel URLs are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "GBP"
	}

	return &checkoutService{
		catalog:        deps.Catalog,
		vouchers:       deps.Vouchers,
		pricing:        deps.Pricing,
		shipping:       deps.Shipping,
		payments:       deps.Payments,
		orders:         deps.Orders,
		abandonedCarts: deps.AbandonedCarts,
		successURL:     strings.TrimSpace(deps.SuccessURL),
		cancelURL:      strings.TrimSpace(deps.CancelURL),
		currency:       currency,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		idGen:  idGen,
	}, nil
}

// BuildSession re-derives trusted prices for the claimed cart, applies the
// discount stack and shipping policy, and opens a PSP checkout session.
func (s *checkoutService) BuildSession(ctx context.Context, cmd BuildSessionCommand) (CheckoutSessionResult, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || !strings.Contains(email, "@") {
		return CheckoutSessionResult{}, fmt.Errorf("%w: valid email is required", ErrCheckoutInvalidInput)
	}

	items, err := s.catalog.ResolveCart(ctx, cmd.Items)
	if err != nil {
		if errors.Is(err, ErrCatalogInvalidInput) {
			return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		}
		return CheckoutSessionResult{}, err
	}

	voucher, err := s.resolveVoucher(ctx, cmd.VoucherCode, email)
	if err != nil {
		return CheckoutSessionResult{}, err
	}

	priced, err := s.pricing.Price(ctx, items, voucher)
	if err != nil {
		return CheckoutSessionResult{}, err
	}
	if voucher != nil && !priced.MinSpendMet {
		return CheckoutSessionResult{}, &VoucherRejectedError{
			Code:   voucher.Code,
			Reason: domain.VoucherRejectionMinSpendNotMet,
		}
	}

	shippingFee := s.shipping.Fee(priced.Total, priced.FreeShipping)

	lineItems, remainder := buildSessionLineItems(priced, shippingFee, s.currency)
	totalMinor := int64(0)
	for _, item := range lineItems {
		totalMinor += item.Amount * item.Quantity
	}

	s.recordOpenCart(ctx, email)

	metadata := map[string]string{"email": email}
	if priced.VoucherCode != "" {
		metadata["voucher_code"] = priced.VoucherCode
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{Currency: s.currency}, payments.CheckoutSessionRequest{
		Amount:            totalMinor,
		Currency:          s.currency,
		CustomerEmail:     email,
		SuccessURL:        s.successURL,
		CancelURL:         s.cancelURL,
		Metadata:          metadata,
		IdempotencyKey:    s.sessionIdempotencyKey(email, priced, totalMinor),
		Items:             lineItems,
		ShippingCountries: []string{"GB"},
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_session_failed", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"sessionId":   session.ID,
		"total":       totalMinor,
		"shippingFee": shippingFee,
		"voucher":     priced.VoucherCode,
		"remainder":   remainder,
	})

	return CheckoutSessionResult{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
		TotalMinor:  totalMinor,
		ShippingFee: shippingFee,
		Remainder:   remainder,
	}, nil
}

// resolveVoucher runs the stateless check plus the cart-independent
// eligibility rules that need the customer identity.
func (s *checkoutService) resolveVoucher(ctx context.Context, code string, email string) (*domain.Voucher, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	check, err := s.vouchers.Check(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if !check.Valid {
		return nil, &VoucherRejectedError{Code: code, Reason: check.Reason}
	}

	voucher := check.Voucher
	if !voucher.EmailAllowed(email) {
		return nil, &VoucherRejectedError{Code: code, Reason: domain.VoucherRejectionNotEligible}
	}
	if voucher.FirstOrderOnly {
		prior, err := s.orders.ListByEmail(ctx, email, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		if len(prior) > 0 {
			return nil, &VoucherRejectedError{Code: code, Reason: domain.VoucherRejectionNotEligible}
		}
	}
	return &voucher, nil
}

// buildSessionLineItems converts priced lines into PSP line items, appending
// the shipping line and folding any flat cart-level discount into the product
// lines proportionally. Returns the unrounded remainder of that distribution.
func buildSessionLineItems(priced PricingResult, shippingFee int64, currency string) ([]payments.CheckoutLineItem, int64) {
	items := make([]payments.CheckoutLineItem, 0, len(priced.Lines)+1)
	for _, line := range priced.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Product.Name,
			SKU:      line.Product.ID,
			Quantity: int64(line.Quantity),
			Amount:   line.UnitPrice,
			Currency: currency,
		})
	}

	remainder := int64(0)
	if priced.FlatDiscount > 0 {
		remainder = distributeFlatDiscount(items, priced.FlatDiscount)
	}

	if shippingFee > 0 {
		items = append(items, payments.CheckoutLineItem{
			Name:     "Shipping",
			Quantity: 1,
			Amount:   shippingFee,
			Currency: currency,
		})
	}
	return items, remainder
}

// distributeFlatDiscount spreads a flat amount across the line items in
// proportion to each line's share of the pre-discount total, reducing unit
// amounts. The processor has no negative-line-item primitive, so this is a
// workaround, not a domain concept. The sub-unit remainder that rounding
// leaves behind is returned, not hidden.
func distributeFlatDiscount(items []payments.CheckoutLineItem, flat int64) int64 {
	preTotal := int64(0)
	for _, item := range items {
		preTotal += item.Amount * item.Quantity
	}
	if preTotal <= 0 || flat <= 0 {
		return flat
	}

	applied := int64(0)
	for i := range items {
		lineAmount := items[i].Amount * items[i].Quantity
		share := (flat*lineAmount + preTotal/2) / preTotal
		perUnit := share / items[i].Quantity
		if perUnit > items[i].Amount {
			perUnit = items[i].Amount
		}
		items[i].Amount -= perUnit
		applied += perUnit * items[i].Quantity
	}
	if applied > flat {
		return 0
	}
	return flat - applied
}

// recordOpenCart keeps an abandoned-cart row for the email; fulfillment marks
// it converted when an order completes. Best-effort.
func (s *checkoutService) recordOpenCart(ctx context.Context, email string) {
	if s.abandonedCarts == nil {
		return
	}
	now := s.now()
	if _, err := s.abandonedCarts.Upsert(ctx, domain.AbandonedCart{
		ID:        s.idGen(),
		Email:     email,
		Converted: false,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		s.logger(ctx, "checkout.abandoned_cart_record_failed", map[string]any{
			"email": email,
			"error": err.Error(),
		})
	}
}

func (s *checkoutService) sessionIdempotencyKey(email string, priced PricingResult, total int64) string {
	var b strings.Builder
	b.WriteString(email)
	for _, line := range priced.Lines {
		fmt.Fprintf(&b, "|%s:%d:%d", line.Product.ID, line.Quantity, line.UnitPrice)
	}
	fmt.Fprintf(&b, "|%s|%d", priced.VoucherCode, total)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
