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

type stubCheckoutService struct {
	buildFn func(ctx context.Context, cmd services.BuildSessionCommand) (services.CheckoutSessionResult, error)
	lastCmd services.BuildSessionCommand
}

func (s *stubCheckoutService) BuildSession(ctx context.Context, cmd services.BuildSessionCommand) (services.CheckoutSessionResult, error) {
	s.lastCmd = cmd
	if s.buildFn != nil {
		return s.buildFn(ctx, cmd)
	}
	return services.CheckoutSessionResult{SessionID: "cs_1", RedirectURL: "https://pay.example/cs_1"}, nil
}

func newCheckoutServer(svc services.CheckoutService) http.Handler {
	return NewRouter(WithCheckoutRoutes(NewCheckoutHandlers(svc).Routes))
}

func TestCreateSessionReturnsRedirectURL(t *testing.T) {
	stub := &stubCheckoutService{}
	server := newCheckoutServer(stub)

	body := `{"items":[{"id":"cell-18650","quantity":2}],"email":"buyer@example.com","voucherCode":"SAVE10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["url"] != "https://pay.example/cs_1" {
		t.Fatalf("expected redirect url, got %v", payload)
	}
	if stub.lastCmd.Email != "buyer@example.com" || stub.lastCmd.VoucherCode != "SAVE10" {
		t.Fatalf("unexpected command: %+v", stub.lastCmd)
	}
	if len(stub.lastCmd.Items) != 1 || stub.lastCmd.Items[0].Ref != "cell-18650" || stub.lastCmd.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", stub.lastCmd.Items)
	}
}

func TestCreateSessionRejectsEmptyBody(t *testing.T) {
	server := newCheckoutServer(&stubCheckoutService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(""))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateSessionProductNotFound(t *testing.T) {
	stub := &stubCheckoutService{
		buildFn: func(context.Context, services.BuildSessionCommand) (services.CheckoutSessionResult, error) {
			return services.CheckoutSessionResult{}, services.ErrProductNotFound
		},
	}
	server := newCheckoutServer(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{"items":[{"id":"gone","quantity":1}],"email":"a@b.c"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var payload map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["error"] != "product_not_found" {
		t.Fatalf("expected product_not_found, got %v", payload)
	}
}

func TestCreateSessionMinSpendRejected(t *testing.T) {
	stub := &stubCheckoutService{
		buildFn: func(context.Context, services.BuildSessionCommand) (services.CheckoutSessionResult, error) {
			return services.CheckoutSessionResult{}, &services.VoucherRejectedError{
				Code:   "BIG",
				Reason: domain.VoucherRejectionMinSpendNotMet,
			}
		},
	}
	server := newCheckoutServer(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{"items":[{"id":"x","quantity":1}],"email":"a@b.c","voucherCode":"BIG"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["error"] != "min_spend_not_met" {
		t.Fatalf("expected min_spend_not_met, got %v", payload)
	}
}

func TestCreateSessionVoucherNotEligible(t *testing.T) {
	stub := &stubCheckoutService{
		buildFn: func(context.Context, services.BuildSessionCommand) (services.CheckoutSessionResult, error) {
			return services.CheckoutSessionResult{}, &services.VoucherRejectedError{
				Code:   "VIP",
				Reason: domain.VoucherRejectionNotEligible,
			}
		},
	}
	server := newCheckoutServer(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{"items":[{"id":"x","quantity":1}],"email":"a@b.c","voucherCode":"VIP"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	var payload map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	if rec.Code != http.StatusBadRequest || payload["error"] != "voucher_not_eligible" {
		t.Fatalf("expected voucher_not_eligible 400, got %d %v", rec.Code, payload)
	}
	if payload["reason"] != "VOUCHER_NOT_ELIGIBLE" {
		t.Fatalf("expected rejection reason in details, got %v", payload)
	}
}

func TestCreateSessionPaymentUnavailable(t *testing.T) {
	stub := &stubCheckoutService{
		buildFn: func(context.Context, services.BuildSessionCommand) (services.CheckoutSessionResult, error) {
			return services.CheckoutSessionResult{}, services.ErrCheckoutPaymentFailed
		},
	}
	server := newCheckoutServer(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{"items":[{"id":"x","quantity":1}],"email":"a@b.c"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
