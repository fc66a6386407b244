package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cellforge/api/internal/di"
	"github.com/cellforge/api/internal/handlers"
	"github.com/cellforge/api/internal/payments"
	"github.com/cellforge/api/internal/platform/config"
	"github.com/cellforge/api/internal/platform/jobs"
	"github.com/cellforge/api/internal/platform/observability"
	"github.com/cellforge/api/internal/platform/postgres"
	"github.com/cellforge/api/internal/repositories"
	pgrepo "github.com/cellforge/api/internal/repositories/postgres"
	"github.com/cellforge/api/internal/services"
)

const shutdownGrace = 15 * time.Second

func main() {
	ctx := context.Background()

	// Local development convenience; production injects real env vars.
	_ = godotenv.Load()

	baseLogger, err := observability.NewLogger("api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("postgres close error", zap.Error(err))
		}
	}()

	notifier, pubsubCheck, closePubSub, err := buildNotifications(ctx, cfg.Notifications)
	if err != nil {
		logger.Fatal("failed to initialise pub/sub", zap.Error(err))
	}
	if closePubSub != nil {
		defer closePubSub()
	}

	var extraChecks []repositories.DependencyCheck
	if pubsubCheck != nil {
		extraChecks = append(extraChecks, *pubsubCheck)
	}

	registry, err := pgrepo.NewRegistry(store, extraChecks...)
	if err != nil {
		logger.Fatal("failed to build repository registry", zap.Error(err))
	}
	if err := registry.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: observability.EventLogger(logger.Named("stripe")),
	})
	if err != nil {
		logger.Fatal("failed to build stripe provider", zap.Error(err))
	}
	manager, err := payments.NewManager(map[string]payments.Provider{"stripe": stripeProvider})
	if err != nil {
		logger.Fatal("failed to build payment manager", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, di.Deps{
		Config:        cfg,
		Registry:      registry,
		Payments:      manager,
		Notifications: notifier,
		Logger:        observability.EventLogger(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(registry.Health())),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(container.Services.Checkout).Routes),
		handlers.WithVoucherRoutes(handlers.NewVoucherHandlers(container.Services.Vouchers).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(container.Services.Fulfillment).Routes),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(container.Services.Catalog).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(
			cfg.PSP.StripeWebhookSecret,
			container.Services.Fulfillment,
			observability.EventLogger(logger.Named("webhooks")),
		).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("environment", cfg.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildNotifications connects the Pub/Sub publisher when a project is
// configured. Notifications stay optional: a missing project id runs the API
// without customer emails rather than refusing to start.
func buildNotifications(ctx context.Context, cfg config.NotificationConfig) (services.NotificationPublisher, *repositories.DependencyCheck, func(), error) {
	if cfg.ProjectID == "" {
		return nil, nil, nil, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pubsub client: %w", err)
	}

	topic := client.Topic(cfg.Topic)
	publisher, err := jobs.NewPubSubNotificationPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("pubsub publisher: %w", err)
	}

	check := repositories.DependencyCheck{
		Name: "pubsub",
		Check: func(checkCtx context.Context) error {
			exists, err := topic.Exists(checkCtx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %s does not exist", cfg.Topic)
			}
			return nil
		},
	}

	closeFn := func() {
		topic.Stop()
		_ = client.Close()
	}
	return publisher, &check, closeFn, nil
}
