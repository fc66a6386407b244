package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/platform/httpx"
	"github.com/cellforge/api/internal/services"
)

const maxOrderRequestBody = 4 * 1024

// OrderHandlers exposes the order confirmation endpoint the storefront calls
// after the customer returns from the payment page.
type OrderHandlers struct {
	fulfillment services.FulfillmentService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(fulfillment services.FulfillmentService) *OrderHandlers {
	return &OrderHandlers{fulfillment: fulfillment}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/confirm", h.confirm)
}

type orderConfirmRequest struct {
	SessionID string `json:"sessionId"`
}

type orderLinePayload struct {
	ProductID  string `json:"productId,omitempty"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unitAmount"`
}

type orderPayload struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"sessionId"`
	Email      string             `json:"email"`
	Status     string             `json:"status"`
	Currency   string             `json:"currency"`
	TotalMinor int64              `json:"totalMinor"`
	Lines      []orderLinePayload `json:"lines"`
	CreatedAt  string             `json:"createdAt,omitempty"`
}

type orderConfirmResponse struct {
	Success       bool          `json:"success,omitempty"`
	AlreadyExists bool          `json:"alreadyExists,omitempty"`
	Refunded      bool          `json:"refunded,omitempty"`
	OrderID       string        `json:"orderId,omitempty"`
	Order         *orderPayload `json:"order,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func (h *OrderHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req orderConfirmRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.fulfillment.Confirm(ctx, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFulfillmentInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "order confirmation failed", http.StatusBadGateway))
		}
		return
	}

	switch {
	case result.AlreadyExists:
		writeJSONResponse(w, http.StatusOK, orderConfirmResponse{
			AlreadyExists: true,
			OrderID:       result.Order.ID,
		})
	case result.Refunded:
		writeJSONResponse(w, http.StatusOK, orderConfirmResponse{
			Refunded: true,
			OrderID:  result.Order.ID,
			Error:    refundMessage(result.FailureReason),
		})
	default:
		payload := orderToPayload(result.Order)
		writeJSONResponse(w, http.StatusOK, orderConfirmResponse{
			Success: true,
			Order:   &payload,
		})
	}
}

func orderToPayload(order domain.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLinePayload{
			ProductID:  line.ProductID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitAmount: line.UnitAmount,
		})
	}
	return orderPayload{
		ID:         order.ID,
		SessionID:  order.SessionID,
		Email:      order.Email,
		Status:     string(order.Status),
		Currency:   order.Currency,
		TotalMinor: order.TotalMinor,
		Lines:      lines,
		CreatedAt:  formatTime(order.CreatedAt),
	}
}

func refundMessage(reason string) string {
	switch reason {
	case services.FailureReasonStockConflict:
		return "Your payment was refunded because the items sold out before the order could be fulfilled"
	case services.FailureReasonInvalidAddress:
		return "Your payment was refunded because we cannot deliver to the provided address"
	default:
		return "Your payment was refunded"
	}
}
