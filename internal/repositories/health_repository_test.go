package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/cellforge/api/internal/domain"
)

func TestNewDependencyHealthRepositoryValidation(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatal("expected error for empty check set")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: " "}}); err == nil {
		t.Fatal("expected error for unnamed check")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "db"}}); err == nil {
		t.Fatal("expected error for missing check function")
	}
}

func TestCollectAggregatesStatuses(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return errors.New("broker offline") }},
	}, WithDependencyClock(func() time.Time { return base }))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded report, got %s", report.Status)
	}
	if report.Checks["postgres"].Status != domain.HealthStatusOK {
		t.Fatalf("expected postgres ok, got %+v", report.Checks["postgres"])
	}
	if report.Checks["pubsub"].Detail != "broker offline" {
		t.Fatalf("expected failure detail, got %+v", report.Checks["pubsub"])
	}
}

func TestCollectReportsTimeoutAsError(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "postgres",
			Timeout: 10 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error report, got %s", report.Status)
	}
	if report.Checks["postgres"].Detail != "timeout" {
		t.Fatalf("expected timeout detail, got %+v", report.Checks["postgres"])
	}
}
