package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cellforge/api/internal/payments"
	"github.com/cellforge/api/internal/platform/config"
	"github.com/cellforge/api/internal/repositories"
	"github.com/cellforge/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Catalog     services.CatalogService
	Vouchers    services.VoucherService
	Checkout    services.CheckoutService
	Fulfillment services.FulfillmentService
	Shipping    *services.ShippingPolicy
}

// Deps carries the external collaborators the container cannot build itself.
type Deps struct {
	Config        config.Config
	Registry      repositories.Registry
	Payments      *payments.Manager
	Notifications services.NotificationPublisher
	Logger        services.Logger
	Clock         func() time.Time
}

// Container wires repositories, services, and payment infrastructure for
// runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Payments     *payments.Manager
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring
// provides the Postgres registry and a Stripe-backed payment manager; tests
// supply in-memory registries and stubs.
func NewContainer(_ context.Context, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	shipping := services.NewShippingPolicy(deps.Config.Shipping)

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: deps.Registry.Products(),
		Batches:  deps.Registry.Batches(),
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build catalog service: %w", err)
	}

	vouchers, err := services.NewVoucherService(services.VoucherServiceDeps{
		Vouchers: deps.Registry.Vouchers(),
		Clock:    clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build voucher service: %w", err)
	}

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Tiers:  deps.Registry.VolumeTiers(),
		Logger: deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Catalog:        catalog,
		Vouchers:       vouchers,
		Pricing:        pricing,
		Shipping:       shipping,
		Payments:       deps.Payments,
		Orders:         deps.Registry.Orders(),
		AbandonedCarts: deps.Registry.AbandonedCarts(),
		SuccessURL:     deps.Config.PSP.SuccessURL,
		CancelURL:      deps.Config.PSP.CancelURL,
		Currency:       deps.Config.Currency,
		Clock:          clock,
		Logger:         deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}

	fulfillment, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Payments:       deps.Payments,
		Products:       deps.Registry.Products(),
		Batches:        deps.Registry.Batches(),
		Orders:         deps.Registry.Orders(),
		Vouchers:       deps.Registry.Vouchers(),
		AbandonedCarts: deps.Registry.AbandonedCarts(),
		Notifications:  deps.Notifications,
		Shipping:       shipping,
		Clock:          clock,
		Logger:         deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build fulfillment service: %w", err)
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Payments:     deps.Payments,
		Services: Services{
			Catalog:     catalog,
			Vouchers:    vouchers,
			Checkout:    checkout,
			Fulfillment: fulfillment,
			Shipping:    shipping,
		},
	}, nil
}

// Close releases repository clients and any background infrastructure.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}
