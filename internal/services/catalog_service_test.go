package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories/memory"
)

const (
	testCellID  = "01HZX5TKJ0000000000000CE11"
	testPackID  = "01HZX5TKJ0000000000000AA22"
	testSpareID = "01HZX5TKJ0000000000000BB33"
)

func newCatalogFixture(t *testing.T) (*memory.Registry, CatalogService) {
	t.Helper()
	registry := memory.NewRegistry()
	registry.SeedProducts(
		domain.Product{ID: testCellID, Slug: "cell-18650", Name: "18650 Cell", UnitPrice: 350, Currency: "GBP"},
		domain.Product{ID: testPackID, Slug: "pack-4s", Name: "4S Pack", UnitPrice: 2400, Currency: "GBP"},
		domain.Product{ID: testSpareID, Slug: "spacer", Name: "Cell Spacer", UnitPrice: 45, Currency: "GBP"},
	)
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products: registry.Products(),
		Batches:  registry.Batches(),
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return registry, svc
}

func TestResolveCartEmpty(t *testing.T) {
	_, svc := newCatalogFixture(t)
	if _, err := svc.ResolveCart(context.Background(), nil); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestResolveCartRejectsNonPositiveQuantity(t *testing.T) {
	_, svc := newCatalogFixture(t)
	_, err := svc.ResolveCart(context.Background(), []domain.CartLine{{Ref: "cell-18650", Quantity: 0}})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestResolveCartByIDAndSlug(t *testing.T) {
	_, svc := newCatalogFixture(t)

	items, err := svc.ResolveCart(context.Background(), []domain.CartLine{
		{Ref: testCellID, Quantity: 4},
		{Ref: "PACK-4S", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ResolveCart: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Product.ID != testCellID || items[0].Quantity != 4 {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].Product.Slug != "pack-4s" || items[1].Product.UnitPrice != 2400 {
		t.Fatalf("slug reference must bind the trusted record: %+v", items[1])
	}
}

func TestResolveCartMergesDuplicateReferences(t *testing.T) {
	_, svc := newCatalogFixture(t)

	// Same product referenced by id and by slug collapses into one line.
	items, err := svc.ResolveCart(context.Background(), []domain.CartLine{
		{Ref: testCellID, Quantity: 2},
		{Ref: "spacer", Quantity: 1},
		{Ref: "cell-18650", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("ResolveCart: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected merged cart of 2 items, got %d", len(items))
	}
	if items[0].Product.ID != testCellID || items[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5 in original position, got %+v", items[0])
	}
	if items[1].Product.Slug != "spacer" {
		t.Fatalf("expected cart order preserved, got %+v", items[1])
	}
}

func TestResolveCartUnknownReferenceAborts(t *testing.T) {
	_, svc := newCatalogFixture(t)

	_, err := svc.ResolveCart(context.Background(), []domain.CartLine{
		{Ref: "cell-18650", Quantity: 1},
		{Ref: "no-such-cell", Quantity: 1},
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("one unknown reference must abort the whole cart, got %v", err)
	}
}

func TestListPricesAggregatesLiveStock(t *testing.T) {
	registry, svc := newCatalogFixture(t)
	received := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	registry.SeedBatches(
		domain.Batch{ID: "b1", ProductID: testCellID, StockQuantity: 40, Status: domain.BatchStatusLive, ReceivedAt: received},
		domain.Batch{ID: "b2", ProductID: testCellID, StockQuantity: 10, Status: domain.BatchStatusLive, ReceivedAt: received.Add(time.Hour)},
		domain.Batch{ID: "b3", ProductID: testCellID, StockQuantity: 99, Status: domain.BatchStatusDraft, ReceivedAt: received},
		domain.Batch{ID: "b4", ProductID: testPackID, StockQuantity: 0, Status: domain.BatchStatusLive, ReceivedAt: received},
	)

	prices, err := svc.ListPrices(context.Background(), []string{"cell-18650", "pack-4s"})
	if err != nil {
		t.Fatalf("ListPrices: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(prices))
	}
	if prices[0].LiveStock != 50 {
		t.Fatalf("draft batches must not count toward live stock, got %d", prices[0].LiveStock)
	}
	if prices[1].LiveStock != 0 {
		t.Fatalf("expected zero stock for the pack, got %d", prices[1].LiveStock)
	}
	if prices[0].UnitPrice != 350 || prices[0].Currency != "GBP" {
		t.Fatalf("unexpected advisory price: %+v", prices[0])
	}
}

func TestListPricesAllProducts(t *testing.T) {
	_, svc := newCatalogFixture(t)

	prices, err := svc.ListPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListPrices: %v", err)
	}
	if len(prices) != 3 {
		t.Fatalf("expected the full catalog, got %d entries", len(prices))
	}
}
