package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cellforge/api/internal/platform/postgres"
	"github.com/cellforge/api/internal/repositories"
)

const opTimeout = 5 * time.Second

//go:embed schema.sql
var schemaSQL string

// Registry bundles the PostgreSQL-backed repositories behind the shared accessor interface.
type Registry struct {
	store          *postgres.Store
	products       repositories.ProductRepository
	batches        repositories.BatchRepository
	vouchers       repositories.VoucherRepository
	volumeTiers    repositories.VolumeTierRepository
	orders         repositories.OrderRepository
	abandonedCarts repositories.AbandonedCartRepository
	health         repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires all repositories on top of a connected store.
func NewRegistry(store *postgres.Store, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if store == nil {
		return nil, errors.New("postgres registry: store is required")
	}
	db := store.DB()

	checks := append([]repositories.DependencyCheck{
		{Name: "postgres", Check: store.Ping},
	}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		store:          store,
		products:       &productRepository{db: db},
		batches:        &batchRepository{db: db},
		vouchers:       &voucherRepository{db: db},
		volumeTiers:    &volumeTierRepository{db: db},
		orders:         &orderRepository{db: db},
		abandonedCarts: &abandonedCartRepository{db: db},
		health:         health,
	}, nil
}

// EnsureSchema applies the embedded schema, creating missing tables and indexes.
func (r *Registry) EnsureSchema(ctx context.Context) error {
	if _, err := r.store.DB().ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Registry) Close(ctx context.Context) error {
	return r.store.Close()
}

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Batches() repositories.BatchRepository { return r.batches }

func (r *Registry) Vouchers() repositories.VoucherRepository { return r.vouchers }

func (r *Registry) VolumeTiers() repositories.VolumeTierRepository { return r.volumeTiers }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) AbandonedCarts() repositories.AbandonedCartRepository { return r.abandonedCarts }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func rollbackOnErr(tx *sql.Tx, err *error) {
	if *err != nil {
		_ = tx.Rollback()
	}
}
