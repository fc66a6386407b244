package di

import (
	"context"
	"testing"

	"github.com/cellforge/api/internal/payments"
	"github.com/cellforge/api/internal/platform/config"
	"github.com/cellforge/api/internal/repositories/memory"
)

func testConfig() config.Config {
	return config.Config{
		PSP: config.PSPConfig{
			StripeAPIKey: "sk_test_123",
			SuccessURL:   "https://shop.example/success",
			CancelURL:    "https://shop.example/cancel",
		},
		Shipping: config.ShippingConfig{FlatFeeMinor: 499, FreeOverMinor: 5000},
		Currency: "GBP",
	}
}

func testManager(t *testing.T) *payments.Manager {
	t.Helper()
	provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{APIKey: "sk_test_123"})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	manager, err := payments.NewManager(map[string]payments.Provider{"stripe": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	_, err := NewContainer(context.Background(), Deps{
		Config:   testConfig(),
		Payments: testManager(t),
	})
	if err == nil {
		t.Fatal("expected error without a registry")
	}
}

func TestNewContainerWiresServices(t *testing.T) {
	container, err := NewContainer(context.Background(), Deps{
		Config:   testConfig(),
		Registry: memory.NewRegistry(),
		Payments: testManager(t),
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	svc := container.Services
	if svc.Catalog == nil || svc.Vouchers == nil || svc.Checkout == nil || svc.Fulfillment == nil || svc.Shipping == nil {
		t.Fatalf("expected all services wired, got %+v", svc)
	}
	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
