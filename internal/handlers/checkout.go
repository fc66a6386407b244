package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/platform/httpx"
	"github.com/cellforge/api/internal/services"
)

const maxCheckoutRequestBody = 16 * 1024

// CheckoutHandlers exposes the checkout session endpoint.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.createSession)
}

type checkoutItemRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type checkoutSessionRequest struct {
	Items       []checkoutItemRequest `json:"items"`
	Email       string                `json:"email"`
	VoucherCode string                `json:"voucherCode"`
}

type checkoutSessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req checkoutSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lines := make([]domain.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.CartLine{
			Ref:      strings.TrimSpace(item.ID),
			Quantity: item.Quantity,
		})
	}

	session, err := h.checkout.BuildSession(ctx, services.BuildSessionCommand{
		Items:       lines,
		Email:       req.Email,
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	payload := checkoutSessionResponse{
		URL:       session.RedirectURL,
		SessionID: session.SessionID,
	}
	if !session.ExpiresAt.IsZero() {
		payload.ExpiresAt = formatTime(session.ExpiresAt)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var rejected *services.VoucherRejectedError
	switch {
	case errors.As(err, &rejected):
		code := "voucher_not_eligible"
		if rejected.Reason == domain.VoucherRejectionMinSpendNotMet {
			code = "min_spend_not_met"
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, rejected.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"reason": string(rejected.Reason)}))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment provider rejected the session", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to create checkout session", http.StatusInternalServerError))
	}
}
