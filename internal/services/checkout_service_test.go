package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/payments"
	"github.com/cellforge/api/internal/platform/config"
	"github.com/cellforge/api/internal/repositories/memory"
)

type stubSessionManager struct {
	createFn func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	lastReq  payments.CheckoutSessionRequest
}

func (s *stubSessionManager) CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.lastReq = req
	if s.createFn != nil {
		return s.createFn(ctx, paymentCtx, req)
	}
	return payments.CheckoutSession{ID: "cs_test_1", Provider: "stripe", RedirectURL: "https://pay.example/cs_test_1"}, nil
}

type checkoutFixture struct {
	registry *memory.Registry
	payments *stubSessionManager
	service  CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	registry := memory.NewRegistry()
	registry.SeedProducts(
		domain.Product{ID: testCellID, Slug: "cell-18650", Name: "18650 Cell", UnitPrice: 1000, Currency: "GBP"},
		domain.Product{ID: testPackID, Slug: "pack-4s", Name: "4S Pack", UnitPrice: 2000, Currency: "GBP"},
	)

	catalog, err := NewCatalogService(CatalogServiceDeps{Products: registry.Products(), Batches: registry.Batches()})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	vouchers, err := NewVoucherService(VoucherServiceDeps{Vouchers: registry.Vouchers()})
	if err != nil {
		t.Fatalf("NewVoucherService: %v", err)
	}
	pricing, err := NewPricingEngine(PricingEngineDeps{Tiers: registry.VolumeTiers()})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	shipping := NewShippingPolicy(config.ShippingConfig{
		FlatFeeMinor:      499,
		FreeOverMinor:     5000,
		ExcludedPostAreas: []string{"BT", "IM", "GY", "JE", "HS", "ZE", "KW", "IV"},
	})

	manager := &stubSessionManager{}
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:        catalog,
		Vouchers:       vouchers,
		Pricing:        pricing,
		Shipping:       shipping,
		Payments:       manager,
		Orders:         registry.Orders(),
		AbandonedCarts: registry.AbandonedCarts(),
		SuccessURL:     "https://shop.example/success",
		CancelURL:      "https://shop.example/cancel",
		Currency:       "GBP",
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return &checkoutFixture{registry: registry, payments: manager, service: service}
}

func TestBuildSessionRequiresEmail(t *testing.T) {
	f := newCheckoutFixture(t)
	_, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items: []domain.CartLine{{Ref: "cell-18650", Quantity: 1}},
		Email: "not-an-email",
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestBuildSessionTrustedPricesOnly(t *testing.T) {
	f := newCheckoutFixture(t)

	result, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items: []domain.CartLine{{Ref: "cell-18650", Quantity: 2}},
		Email: "Buyer@Example.COM",
	})
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}

	req := f.payments.lastReq
	if req.CustomerEmail != "buyer@example.com" {
		t.Fatalf("expected normalised email, got %q", req.CustomerEmail)
	}
	if len(req.Items) != 2 {
		t.Fatalf("expected product line plus shipping line, got %d", len(req.Items))
	}
	if req.Items[0].SKU != testCellID || req.Items[0].Amount != 1000 || req.Items[0].Quantity != 2 {
		t.Fatalf("line must carry the trusted catalog price: %+v", req.Items[0])
	}
	if req.Items[1].Name != "Shipping" || req.Items[1].Amount != 499 || req.Items[1].SKU != "" {
		t.Fatalf("unexpected shipping line: %+v", req.Items[1])
	}
	if result.TotalMinor != 2499 || req.Amount != 2499 {
		t.Fatalf("unexpected total: result=%d request=%d", result.TotalMinor, req.Amount)
	}
	if len(req.IdempotencyKey) != 64 {
		t.Fatalf("expected sha256 hex idempotency key, got %q", req.IdempotencyKey)
	}
	if result.SessionID != "cs_test_1" || result.RedirectURL == "" {
		t.Fatalf("unexpected session result: %+v", result)
	}
}

func TestBuildSessionFreeShippingOverThreshold(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items: []domain.CartLine{{Ref: "pack-4s", Quantity: 3}},
		Email: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}
	for _, item := range f.payments.lastReq.Items {
		if item.Name == "Shipping" {
			t.Fatalf("expected no shipping line above the free threshold")
		}
	}
}

func TestBuildSessionVoucherRejectedSurfacesReason(t *testing.T) {
	f := newCheckoutFixture(t)
	f.registry.SeedVouchers(domain.Voucher{Code: "OFF", Active: false})

	_, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items:       []domain.CartLine{{Ref: "cell-18650", Quantity: 1}},
		Email:       "buyer@example.com",
		VoucherCode: "OFF",
	})
	var rejected *VoucherRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected VoucherRejectedError, got %v", err)
	}
	if rejected.Reason != domain.VoucherRejectionDisabled {
		t.Fatalf("expected VOUCHER_DISABLED, got %s", rejected.Reason)
	}
}

func TestBuildSessionMinSpendRecheckedAfterTiers(t *testing.T) {
	f := newCheckoutFixture(t)
	f.registry.SeedTiers(domain.VolumeDiscountTier{ID: "t1", MinQuantity: 2, DiscountPercent: 10, Active: true})
	f.registry.SeedVouchers(domain.Voucher{
		Code: "BIGSPEND", Type: domain.VoucherTypePercent, DiscountPercent: 20, Active: true,
		MinSpend: 1900,
	})

	// Two cells gross 20.00, but the tier drops the subtotal to 18.00.
	_, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items:       []domain.CartLine{{Ref: "cell-18650", Quantity: 2}},
		Email:       "buyer@example.com",
		VoucherCode: "BIGSPEND",
	})
	var rejected *VoucherRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected VoucherRejectedError, got %v", err)
	}
	if rejected.Reason != domain.VoucherRejectionMinSpendNotMet {
		t.Fatalf("expected MIN_SPEND_NOT_MET, got %s", rejected.Reason)
	}
}

func TestBuildSessionVoucherEmailAllowList(t *testing.T) {
	f := newCheckoutFixture(t)
	f.registry.SeedVouchers(domain.Voucher{
		Code: "VIP", Type: domain.VoucherTypeFixed, DiscountAmount: 100, Active: true,
		AllowedEmails: []string{"vip@example.com"},
	})

	_, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items:       []domain.CartLine{{Ref: "cell-18650", Quantity: 1}},
		Email:       "buyer@example.com",
		VoucherCode: "VIP",
	})
	var rejected *VoucherRejectedError
	if !errors.As(err, &rejected) || rejected.Reason != domain.VoucherRejectionNotEligible {
		t.Fatalf("expected VOUCHER_NOT_ELIGIBLE, got %v", err)
	}
}

func TestBuildSessionFirstOrderOnly(t *testing.T) {
	f := newCheckoutFixture(t)
	f.registry.SeedVouchers(domain.Voucher{
		Code: "WELCOME", Type: domain.VoucherTypeFixed, DiscountAmount: 100, Active: true,
		FirstOrderOnly: true,
	})
	if err := f.registry.Orders().Insert(context.Background(), domain.Order{
		ID: "ord_1", SessionID: "cs_prior", Email: "buyer@example.com",
		Status: domain.OrderStatusPaid, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	_, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items:       []domain.CartLine{{Ref: "cell-18650", Quantity: 1}},
		Email:       "buyer@example.com",
		VoucherCode: "WELCOME",
	})
	var rejected *VoucherRejectedError
	if !errors.As(err, &rejected) || rejected.Reason != domain.VoucherRejectionNotEligible {
		t.Fatalf("expected VOUCHER_NOT_ELIGIBLE for a returning customer, got %v", err)
	}
}

func TestBuildSessionFlatDiscountDistribution(t *testing.T) {
	f := newCheckoutFixture(t)
	f.registry.SeedVouchers(domain.Voucher{
		Code: "FLAT300", Type: domain.VoucherTypeFixed, DiscountAmount: 300, Active: true,
	})

	// 10.00 + 20.00 pre-discount; 3.00 splits 1.00/2.00 by line share.
	result, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items: []domain.CartLine{
			{Ref: "cell-18650", Quantity: 1},
			{Ref: "pack-4s", Quantity: 1},
		},
		Email:       "buyer@example.com",
		VoucherCode: "FLAT300",
	})
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}

	req := f.payments.lastReq
	if len(req.Items) != 3 {
		t.Fatalf("expected two product lines plus shipping, got %d", len(req.Items))
	}
	if req.Items[0].Amount != 900 || req.Items[1].Amount != 1800 {
		t.Fatalf("expected proportional distribution 900/1800, got %d/%d", req.Items[0].Amount, req.Items[1].Amount)
	}
	if req.Items[2].Amount != 499 {
		t.Fatalf("flat discount must not touch the shipping line, got %d", req.Items[2].Amount)
	}
	if result.Remainder != 0 {
		t.Fatalf("expected clean distribution, got remainder %d", result.Remainder)
	}
	if req.Metadata["voucher_code"] != "FLAT300" {
		t.Fatalf("voucher code must travel in session metadata, got %v", req.Metadata)
	}
	if result.TotalMinor != 3199 {
		t.Fatalf("unexpected charged total %d", result.TotalMinor)
	}
}

func TestBuildSessionPaymentFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	f.payments.createFn = func(context.Context, payments.PaymentContext, payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		return payments.CheckoutSession{}, errors.New("stripe: connection reset")
	}

	_, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items: []domain.CartLine{{Ref: "cell-18650", Quantity: 1}},
		Email: "buyer@example.com",
	})
	if !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected payment failure, got %v", err)
	}
}

func TestBuildSessionRecordsOpenCart(t *testing.T) {
	f := newCheckoutFixture(t)

	if _, err := f.service.BuildSession(context.Background(), BuildSessionCommand{
		Items: []domain.CartLine{{Ref: "cell-18650", Quantity: 1}},
		Email: "buyer@example.com",
	}); err != nil {
		t.Fatalf("BuildSession: %v", err)
	}

	converted, err := f.registry.AbandonedCarts().MarkConvertedByEmail(context.Background(), "buyer@example.com", time.Now())
	if err != nil {
		t.Fatalf("MarkConvertedByEmail: %v", err)
	}
	if converted != 1 {
		t.Fatalf("expected one open cart recorded, got %d", converted)
	}
}
