package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/services"
)

func newWebhookServer(secret string, svc services.FulfillmentService) http.Handler {
	return NewRouter(WithWebhookRoutes(NewWebhookHandlers(secret, svc, nil).Routes))
}

func TestStripeWebhookCompletedSessionTriggersFulfillment(t *testing.T) {
	var confirmedSession string
	stub := &stubFulfillmentService{
		confirmFn: func(_ context.Context, sessionID string) (services.ConfirmResult, error) {
			confirmedSession = sessionID
			return services.ConfirmResult{Order: domain.Order{ID: "01HZX5TKJ0000000000000EE55"}}, nil
		},
	}
	server := newWebhookServer("", stub)

	body := `{"type":"checkout.session.completed","data":{"object":{"id":"cs_hook_1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if confirmedSession != "cs_hook_1" {
		t.Fatalf("expected fulfillment for cs_hook_1, got %q", confirmedSession)
	}
	var payload map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["received"] != true {
		t.Fatalf("unexpected ack payload: %v", payload)
	}
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	stub := &stubFulfillmentService{
		confirmFn: func(context.Context, string) (services.ConfirmResult, error) {
			t.Fatal("fulfillment must not run for unrelated events")
			return services.ConfirmResult{}, nil
		},
	}
	server := newWebhookServer("", stub)

	body := `{"type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unhandled events must be acknowledged, got %d", rec.Code)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	server := newWebhookServer("whsec_test", &stubFulfillmentService{})

	body := `{"type":"checkout.session.completed","data":{"object":{"id":"cs_hook_1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected signature rejection, got %d", rec.Code)
	}
}

func TestStripeWebhookRetriesOnFulfillmentError(t *testing.T) {
	stub := &stubFulfillmentService{
		confirmFn: func(context.Context, string) (services.ConfirmResult, error) {
			return services.ConfirmResult{}, services.ErrFulfillmentUnavailable
		},
	}
	server := newWebhookServer("", stub)

	body := `{"type":"checkout.session.completed","data":{"object":{"id":"cs_hook_1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected non-2xx so the processor retries, got %d", rec.Code)
	}
}
