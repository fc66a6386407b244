package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

// OrderRepository keeps orders in memory with the same uniqueness contract on
// session id as the Postgres implementation.
type OrderRepository struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	bySession map[string]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:    map[string]domain.Order{},
		bySession: map[string]string{},
	}
}

func (r *OrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return repositories.NewConflict("order.insert", "order id already exists", nil)
	}
	if _, exists := r.bySession[order.SessionID]; exists {
		return repositories.NewConflict("order.insert", "session already materialized", nil)
	}
	r.orders[order.ID] = cloneOrder(order)
	r.bySession[order.SessionID] = order.ID
	return nil
}

func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFound("order.find_by_id", "order not found", nil)
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) FindBySessionID(_ context.Context, sessionID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orderID, ok := r.bySession[sessionID]
	if !ok {
		return domain.Order{}, repositories.NewNotFound("order.find_by_session_id", "order not found", nil)
	}
	return cloneOrder(r.orders[orderID]), nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, orderID string, status domain.OrderStatus, now time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFound("order.update_status", "order not found", nil)
	}
	if !order.Status.CanTransition(status) {
		return domain.Order{}, repositories.NewConflict("order.update_status",
			fmt.Sprintf("order cannot move from %s to %s", order.Status, status), nil)
	}
	order.Status = status
	order.UpdatedAt = now
	r.orders[orderID] = order
	return cloneOrder(order), nil
}

func (r *OrderRepository) ListByEmail(_ context.Context, email string, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	out := make([]domain.Order, 0)
	for _, order := range r.orders {
		if strings.ToLower(order.Email) == email {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	out.Lines = append([]domain.OrderLine(nil), order.Lines...)
	if order.Metadata != nil {
		out.Metadata = make(map[string]any, len(order.Metadata))
		for k, v := range order.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
