// Package memory provides mutex-guarded in-memory repositories used by tests
// and local runs that have no Postgres available.
package memory

import (
	"context"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

// Registry is an in-memory implementation of repositories.Registry.
type Registry struct {
	products       *ProductRepository
	batches        *BatchRepository
	vouchers       *VoucherRepository
	tiers          *VolumeTierRepository
	orders         *OrderRepository
	abandonedCarts *AbandonedCartRepository
	health         repositories.HealthRepository
}

// NewRegistry seeds an empty in-memory registry whose health check always
// reports ok.
func NewRegistry() *Registry {
	return &Registry{
		products:       NewProductRepository(),
		batches:        NewBatchRepository(),
		vouchers:       NewVoucherRepository(),
		tiers:          NewVolumeTierRepository(),
		orders:         NewOrderRepository(),
		abandonedCarts: NewAbandonedCartRepository(),
		health:         staticHealth{},
	}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Batches() repositories.BatchRepository { return r.batches }

func (r *Registry) Vouchers() repositories.VoucherRepository { return r.vouchers }

func (r *Registry) VolumeTiers() repositories.VolumeTierRepository { return r.tiers }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) AbandonedCarts() repositories.AbandonedCartRepository { return r.abandonedCarts }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// SeedProducts replaces the product set. Intended for test setup.
func (r *Registry) SeedProducts(products ...domain.Product) { r.products.Seed(products...) }

// SeedBatches replaces the batch set. Intended for test setup.
func (r *Registry) SeedBatches(batches ...domain.Batch) { r.batches.Seed(batches...) }

// SeedVouchers replaces the voucher set. Intended for test setup.
func (r *Registry) SeedVouchers(vouchers ...domain.Voucher) { r.vouchers.Seed(vouchers...) }

// SeedTiers replaces the tier set. Intended for test setup.
func (r *Registry) SeedTiers(tiers ...domain.VolumeDiscountTier) { r.tiers.Seed(tiers...) }

type staticHealth struct{}

func (staticHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}
