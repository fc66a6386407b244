package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates an empty cart or a non-positive quantity.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates a cart reference has no trusted catalog match.
	// Checkout aborts entirely rather than dropping the line.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogUnavailable indicates the catalog store could not be reached.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// Product ids are ULIDs; anything else is treated as a human slug.
var productIDPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

// CatalogServiceDeps wires the dependencies required by the catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
	Batches  repositories.BatchRepository
	Logger   Logger
}

type catalogService struct {
	products repositories.ProductRepository
	batches  repositories.BatchRepository
	logger   Logger
}

// NewCatalogService constructs a CatalogService validating required dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Batches == nil {
		return nil, errors.New("catalog service: batch repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products: deps.Products,
		batches:  deps.Batches,
		logger:   logger,
	}, nil
}

// ResolveCart maps each client reference to its trusted product record,
// fetching id-shaped and slug-shaped references in parallel and merging
// duplicate references to the same product.
func (s *catalogService) ResolveCart(ctx context.Context, lines []domain.CartLine) ([]ResolvedItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrCatalogInvalidInput)
	}

	type claim struct {
		ref      string
		quantity int
	}
	claims := make([]claim, 0, len(lines))
	for _, line := range lines {
		ref := strings.TrimSpace(line.Ref)
		if ref == "" {
			return nil, fmt.Errorf("%w: blank item reference", ErrCatalogInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for %q", ErrCatalogInvalidInput, ref)
		}
		claims = append(claims, claim{ref: ref, quantity: line.Quantity})
	}

	var mu sync.Mutex
	resolved := make([]domain.Product, len(claims))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, c := range claims {
		i, c := i, c
		group.Go(func() error {
			var (
				product domain.Product
				err     error
			)
			if productIDPattern.MatchString(strings.ToUpper(c.ref)) {
				product, err = s.products.FindByID(groupCtx, strings.ToUpper(c.ref))
			} else {
				product, err = s.products.FindBySlug(groupCtx, strings.ToLower(c.ref))
			}
			if err != nil {
				if repositories.IsNotFound(err) {
					return fmt.Errorf("%w: %q", ErrProductNotFound, c.ref)
				}
				return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
			}
			mu.Lock()
			resolved[i] = product
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Merge duplicate references to the same product, preserving cart order.
	order := make([]string, 0, len(claims))
	merged := make(map[string]*ResolvedItem, len(claims))
	for i, c := range claims {
		product := resolved[i]
		if item, ok := merged[product.ID]; ok {
			item.Quantity += c.quantity
			continue
		}
		merged[product.ID] = &ResolvedItem{Product: product, Quantity: c.quantity}
		order = append(order, product.ID)
	}

	items := make([]ResolvedItem, 0, len(order))
	for _, id := range order {
		items = append(items, *merged[id])
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no references resolved", ErrProductNotFound)
	}

	s.logger(ctx, "catalog.cart_resolved", map[string]any{
		"references": len(claims),
		"products":   len(items),
	})
	return items, nil
}

// ListPrices returns the advisory price and aggregate live stock snapshot for
// polling clients. Refs narrow the set; an empty list returns every product.
func (s *catalogService) ListPrices(ctx context.Context, refs []string) ([]ProductPrice, error) {
	var (
		products []domain.Product
		err      error
	)
	if len(refs) == 0 {
		products, err = s.products.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	} else {
		lines := make([]domain.CartLine, 0, len(refs))
		for _, ref := range refs {
			if strings.TrimSpace(ref) == "" {
				continue
			}
			lines = append(lines, domain.CartLine{Ref: ref, Quantity: 1})
		}
		items, err := s.ResolveCart(ctx, lines)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			products = append(products, item.Product)
		}
	}

	prices := make([]ProductPrice, 0, len(products))
	for _, product := range products {
		stock := 0
		batches, err := s.batches.ListAllocatable(ctx, product.ID)
		if err != nil {
			s.logger(ctx, "catalog.stock_lookup_failed", map[string]any{
				"productId": product.ID,
				"error":     err.Error(),
			})
		} else {
			for _, batch := range batches {
				stock += batch.StockQuantity
			}
		}
		prices = append(prices, ProductPrice{
			ProductID: product.ID,
			Slug:      product.Slug,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			Currency:  product.Currency,
			LiveStock: stock,
		})
	}
	return prices, nil
}
