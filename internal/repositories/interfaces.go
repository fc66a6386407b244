package repositories

import (
	"context"
	"time"

	domain "github.com/cellforge/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Batches() BatchRepository
	Vouchers() VoucherRepository
	VolumeTiers() VolumeTierRepository
	Orders() OrderRepository
	AbandonedCarts() AbandonedCartRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads the trusted catalog records.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}

// BatchRepository manages stock batches. DecrementStock commits only when the
// stored quantity still equals the expected value, so concurrent allocations
// against the same batch contend instead of double-spending stock.
type BatchRepository interface {
	ListAllocatable(ctx context.Context, productID string) ([]domain.Batch, error)
	DecrementStock(ctx context.Context, batchID string, expected int, next int, now time.Time) error
}

// VoucherRepository reads voucher definitions and maintains global usage counts.
type VoucherRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
	IncrementUsage(ctx context.Context, code string, now time.Time) error
}

// VolumeTierRepository reads the global quantity-threshold discount tiers.
type VolumeTierRepository interface {
	ListActive(ctx context.Context) ([]domain.VolumeDiscountTier, error)
}

// OrderRepository persists materialized orders. Insert must surface a conflict
// RepositoryError when another order already holds the same session id.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) (domain.Order, error)
	ListByEmail(ctx context.Context, email string, limit int) ([]domain.Order, error)
}

// AbandonedCartRepository tracks open carts by email and closes them out on conversion.
type AbandonedCartRepository interface {
	Upsert(ctx context.Context, cart domain.AbandonedCart) (domain.AbandonedCart, error)
	MarkConvertedByEmail(ctx context.Context, email string, now time.Time) (int, error)
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
