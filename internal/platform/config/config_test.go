package config

import (
	"errors"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/storefront")
	t.Setenv("STRIPE_API_KEY", "sk_test_123")
	t.Setenv("CHECKOUT_SUCCESS_URL", "https://shop.example/checkout/success")
	t.Setenv("CHECKOUT_CANCEL_URL", "https://shop.example/checkout/cancel")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Currency != "GBP" {
		t.Fatalf("expected default currency GBP, got %s", cfg.Currency)
	}
	if cfg.Shipping.FlatFeeMinor != 499 {
		t.Fatalf("expected default flat fee 499, got %d", cfg.Shipping.FlatFeeMinor)
	}
	if cfg.Shipping.FreeOverMinor != 5000 {
		t.Fatalf("expected default free threshold 5000, got %d", cfg.Shipping.FreeOverMinor)
	}
	if len(cfg.Shipping.ExcludedPostAreas) != 8 {
		t.Fatalf("expected 8 default excluded areas, got %v", cfg.Shipping.ExcludedPostAreas)
	}
	if cfg.Notifications.Topic != "storefront-notifications" {
		t.Fatalf("unexpected default topic %s", cfg.Notifications.Topic)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SERVER_READ_TIMEOUT", "3s")
	t.Setenv("SHIPPING_FLAT_FEE_MINOR", "250")
	t.Setenv("SHIPPING_EXCLUDED_PREFIXES", "bt, im")
	t.Setenv("CURRENCY", "eur")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Fatalf("expected read timeout override, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Shipping.FlatFeeMinor != 250 {
		t.Fatalf("expected flat fee override, got %d", cfg.Shipping.FlatFeeMinor)
	}
	if len(cfg.Shipping.ExcludedPostAreas) != 2 || cfg.Shipping.ExcludedPostAreas[0] != "BT" || cfg.Shipping.ExcludedPostAreas[1] != "IM" {
		t.Fatalf("expected normalised excluded areas, got %v", cfg.Shipping.ExcludedPostAreas)
	}
	if cfg.Currency != "EUR" {
		t.Fatalf("expected currency uppercased, got %s", cfg.Currency)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STRIPE_API_KEY", "")
	t.Setenv("CHECKOUT_SUCCESS_URL", "")
	t.Setenv("CHECKOUT_CANCEL_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validation.Fields()) != 4 {
		t.Fatalf("expected 4 missing fields, got %v", validation.Fields())
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_WRITE_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Fatalf("expected fallback write timeout, got %s", cfg.Server.WriteTimeout)
	}
}
