package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultDBMaxConns        = 10
	defaultDBConnTimeout     = 5 * time.Second
	defaultCurrency          = "GBP"
	defaultShippingFlatFee   = int64(499)  // £4.99
	defaultFreeShippingOver  = int64(5000) // £50.00
	defaultExcludedPrefixes  = "BT,IM,GY,JE,HS,ZE,KW,IV"
	defaultNotificationTopic = "storefront-notifications"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	PSP           PSPConfig
	Shipping      ShippingConfig
	Notifications NotificationConfig
	Currency      string
	Environment   string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig stores Postgres connection parameters.
type DatabaseConfig struct {
	URL            string
	MaxConns       int
	ConnectTimeout time.Duration
}

// PSPConfig collects secrets and redirect targets for the payment processor.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	SuccessURL          string
	CancelURL           string
}

// ShippingConfig drives the shipping-fee policy and the mainland-only
// postcode rules applied during fulfillment.
type ShippingConfig struct {
	FlatFeeMinor      int64
	FreeOverMinor     int64
	ExcludedPostAreas []string
}

// NotificationConfig configures the Pub/Sub notification dispatch.
type NotificationConfig struct {
	ProjectID string
	Topic     string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Load reads configuration from the environment, applying defaults and
// validating required fields.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Port:         envOr("PORT", defaultPort),
			ReadTimeout:  durationEnv("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationEnv("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationEnv("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Database: DatabaseConfig{
			URL:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
			MaxConns:       intEnv("DATABASE_MAX_CONNS", defaultDBMaxConns),
			ConnectTimeout: durationEnv("DATABASE_CONNECT_TIMEOUT", defaultDBConnTimeout),
		},
		PSP: PSPConfig{
			StripeAPIKey:        strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
			StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
			SuccessURL:          strings.TrimSpace(os.Getenv("CHECKOUT_SUCCESS_URL")),
			CancelURL:           strings.TrimSpace(os.Getenv("CHECKOUT_CANCEL_URL")),
		},
		Shipping: ShippingConfig{
			FlatFeeMinor:      int64Env("SHIPPING_FLAT_FEE_MINOR", defaultShippingFlatFee),
			FreeOverMinor:     int64Env("SHIPPING_FREE_OVER_MINOR", defaultFreeShippingOver),
			ExcludedPostAreas: splitList(envOr("SHIPPING_EXCLUDED_PREFIXES", defaultExcludedPrefixes)),
		},
		Notifications: NotificationConfig{
			ProjectID: strings.TrimSpace(os.Getenv("PUBSUB_PROJECT_ID")),
			Topic:     envOr("PUBSUB_NOTIFICATION_TOPIC", defaultNotificationTopic),
		},
		Currency:    strings.ToUpper(envOr("CURRENCY", defaultCurrency)),
		Environment: envOr("ENVIRONMENT", "local"),
	}

	var missing []string
	if cfg.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.PSP.StripeAPIKey == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}
	if cfg.PSP.SuccessURL == "" {
		missing = append(missing, "CHECKOUT_SUCCESS_URL")
	}
	if cfg.PSP.CancelURL == "" {
		missing = append(missing, "CHECKOUT_CANCEL_URL")
	}
	if cfg.Shipping.FlatFeeMinor < 0 {
		missing = append(missing, "SHIPPING_FLAT_FEE_MINOR")
	}
	if len(missing) > 0 {
		return Config{}, &ValidationError{fields: missing}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func int64Env(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToUpper(strings.TrimSpace(part)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
