package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

// BatchRepository keeps stock batches in memory. DecrementStock applies the
// same compare-and-swap contract as the Postgres implementation so service
// tests can exercise the contention path.
type BatchRepository struct {
	mu      sync.Mutex
	batches map[string]domain.Batch
}

func NewBatchRepository() *BatchRepository {
	return &BatchRepository{batches: map[string]domain.Batch{}}
}

// Seed replaces the stored batch set.
func (r *BatchRepository) Seed(batches ...domain.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = make(map[string]domain.Batch, len(batches))
	for _, b := range batches {
		r.batches[b.ID] = b
	}
}

func (r *BatchRepository) ListAllocatable(_ context.Context, productID string) ([]domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Batch, 0)
	for _, batch := range r.batches {
		if batch.ProductID == productID && batch.Allocatable() {
			out = append(out, batch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *BatchRepository) DecrementStock(_ context.Context, batchID string, expected int, next int, now time.Time) error {
	if next < 0 || next > expected {
		return repositories.NewConflict("batch.decrement_stock", "next quantity out of range", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok {
		return repositories.NewNotFound("batch.decrement_stock", "batch not found", nil)
	}
	if batch.StockQuantity != expected {
		return repositories.NewConflict("batch.decrement_stock", "stock quantity changed concurrently", nil)
	}
	batch.StockQuantity = next
	batch.UpdatedAt = now
	r.batches[batchID] = batch
	return nil
}
