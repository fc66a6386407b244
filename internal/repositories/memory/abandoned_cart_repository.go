package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/cellforge/api/internal/domain"
)

// AbandonedCartRepository keeps open cart records in memory.
type AbandonedCartRepository struct {
	mu    sync.Mutex
	carts map[string]domain.AbandonedCart
}

func NewAbandonedCartRepository() *AbandonedCartRepository {
	return &AbandonedCartRepository{carts: map[string]domain.AbandonedCart{}}
}

func (r *AbandonedCartRepository) Upsert(_ context.Context, cart domain.AbandonedCart) (domain.AbandonedCart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.carts[cart.ID]; ok {
		existing.Email = cart.Email
		existing.Converted = cart.Converted
		existing.UpdatedAt = cart.UpdatedAt
		r.carts[cart.ID] = existing
		return existing, nil
	}
	r.carts[cart.ID] = cart
	return cart, nil
}

func (r *AbandonedCartRepository) MarkConvertedByEmail(_ context.Context, email string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	converted := 0
	for id, cart := range r.carts {
		if cart.Converted || strings.ToLower(cart.Email) != email {
			continue
		}
		cart.Converted = true
		cart.UpdatedAt = now
		r.carts[id] = cart
		converted++
	}
	return converted, nil
}
