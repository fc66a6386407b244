package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

func TestOrderUpdateStatusGuardsTransitions(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.Insert(ctx, domain.Order{
		ID:        "ord_1",
		SessionID: "cs_1",
		Email:     "buyer@example.com",
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	updated, err := repo.UpdateStatus(ctx, "ord_1", domain.OrderStatusPaid, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpdateStatus pending -> paid: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid {
		t.Fatalf("expected status paid, got %s", updated.Status)
	}
	if !updated.UpdatedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected updated_at to advance, got %v", updated.UpdatedAt)
	}

	if _, err := repo.UpdateStatus(ctx, "ord_1", domain.OrderStatusRefundedNoStock, now.Add(2*time.Minute)); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict for paid -> refunded_no_stock, got %v", err)
	}

	stored, err := repo.FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Status != domain.OrderStatusPaid {
		t.Fatalf("rejected transition must not change stored status, got %s", stored.Status)
	}

	if _, err := repo.UpdateStatus(ctx, "ord_missing", domain.OrderStatusPaid, now); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found for unknown order, got %v", err)
	}
}
