package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cellforge/api/internal/platform/httpx"
	"github.com/cellforge/api/internal/services"
)

// CatalogHandlers exposes the advisory price endpoint polling storefronts use
// to keep displayed prices and stock in sync with the trusted catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers catalog endpoints under the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/prices", h.listPrices)
}

type productPricePayload struct {
	ProductID string `json:"productId"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Currency  string `json:"currency"`
	LiveStock int    `json:"liveStock"`
}

func (h *CatalogHandlers) listPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var refs []string
	for _, raw := range r.URL.Query()["ref"] {
		for _, ref := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(ref); trimmed != "" {
				refs = append(refs, trimmed)
			}
		}
	}

	prices, err := h.catalog.ListPrices(ctx, refs)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
		case errors.Is(err, services.ErrCatalogInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "price lookup failed", http.StatusServiceUnavailable))
		}
		return
	}

	payload := make([]productPricePayload, 0, len(prices))
	for _, price := range prices {
		payload = append(payload, productPricePayload{
			ProductID: price.ProductID,
			Slug:      price.Slug,
			Name:      price.Name,
			UnitPrice: price.UnitPrice,
			Currency:  price.Currency,
			LiveStock: price.LiveStock,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"prices": payload})
}
