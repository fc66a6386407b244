package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/cellforge/api/internal/platform/httpx"
	"github.com/cellforge/api/internal/services"
)

const maxWebhookBody = 64 * 1024

// WebhookHandlers receives payment processor callbacks. The webhook is the
// authoritative fulfillment trigger; the browser redirect merely races it.
type WebhookHandlers struct {
	signingSecret string
	fulfillment   services.FulfillmentService
	logger        services.Logger
}

// NewWebhookHandlers constructs webhook handlers. An empty signing secret
// disables signature verification, acceptable only in local development.
func NewWebhookHandlers(signingSecret string, fulfillment services.FulfillmentService, logger services.Logger) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{
		signingSecret: strings.TrimSpace(signingSecret),
		fulfillment:   fulfillment,
		logger:        logger,
	}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook payload", http.StatusBadRequest))
		return
	}

	event, err := h.parseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger(ctx, "webhook.signature_rejected", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.completeSession(ctx, w, event)
	default:
		// Acknowledge everything else so the processor stops retrying.
		h.logger(ctx, "webhook.event_ignored", map[string]any{"type": string(event.Type)})
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
	}
}

func (h *WebhookHandlers) parseEvent(payload []byte, signature string) (stripe.Event, error) {
	if h.signingSecret != "" {
		return webhook.ConstructEvent(payload, signature, h.signingSecret)
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, err
	}
	return event, nil
}

func (h *WebhookHandlers) completeSession(ctx context.Context, w http.ResponseWriter, event stripe.Event) {
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil || session.ID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event payload is not a checkout session", http.StatusBadRequest))
		return
	}

	result, err := h.fulfillment.Confirm(ctx, session.ID)
	if err != nil {
		h.logger(ctx, "webhook.fulfillment_failed", map[string]any{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		// Non-2xx makes the processor retry, which is what a transient
		// store or PSP outage needs.
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "order confirmation failed", http.StatusBadGateway))
		return
	}

	h.logger(ctx, "webhook.session_completed", map[string]any{
		"sessionId":     session.ID,
		"orderId":       result.Order.ID,
		"alreadyExists": result.AlreadyExists,
		"refunded":      result.Refunded,
	})
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true, "orderId": result.Order.ID})
}
