package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

// ProductRepository keeps catalog records in a map keyed by product id.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: map[string]domain.Product{}}
}

// Seed replaces the stored product set.
func (r *ProductRepository) Seed(products ...domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = make(map[string]domain.Product, len(products))
	for _, p := range products {
		r.products[p.ID] = p
	}
}

func (r *ProductRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFound("product.find_by_id", "product not found", nil)
	}
	return product, nil
}

func (r *ProductRepository) FindBySlug(_ context.Context, slug string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slug = strings.ToLower(slug)
	for _, product := range r.products {
		if strings.ToLower(product.Slug) == slug {
			return product, nil
		}
	}
	return domain.Product{}, repositories.NewNotFound("product.find_by_slug", "product not found", nil)
}

func (r *ProductRepository) List(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Product, 0, len(r.products))
	for _, product := range r.products {
		out = append(out, product)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
