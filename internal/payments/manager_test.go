package payments

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	createFn   func(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	retrieveFn func(ctx context.Context, req RetrieveSessionRequest) (SessionDetails, error)
	refundFn   func(ctx context.Context, req RefundRequest) (PaymentDetails, error)
	lookupFn   func(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

func (s *stubProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return CheckoutSession{ID: "cs_stub"}, nil
}

func (s *stubProvider) RetrieveSession(ctx context.Context, req RetrieveSessionRequest) (SessionDetails, error) {
	if s.retrieveFn != nil {
		return s.retrieveFn(ctx, req)
	}
	return SessionDetails{ID: req.SessionID}, nil
}

func (s *stubProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, req)
	}
	return PaymentDetails{IntentID: req.IntentID, Status: StatusRefunded}, nil
}

func (s *stubProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if s.lookupFn != nil {
		return s.lookupFn(ctx, req)
	}
	return PaymentDetails{IntentID: req.IntentID}, nil
}

func TestNewManagerRequiresProviders(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{" ": &stubProvider{}}); err == nil {
		t.Fatal("expected error for blank provider key")
	}
	if _, err := NewManager(map[string]Provider{"stripe": nil}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestManagerDefaultsToStripe(t *testing.T) {
	called := false
	stripe := &stubProvider{
		createFn: func(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
			called = true
			return CheckoutSession{ID: "cs_123"}, nil
		},
	}
	manager, err := NewManager(map[string]Provider{"stripe": stripe, "other": &stubProvider{}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	session, err := manager.CreateCheckoutSession(context.Background(), PaymentContext{}, CheckoutSessionRequest{})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if !called {
		t.Fatal("expected stripe provider to be invoked")
	}
	if session.Provider != "stripe" {
		t.Fatalf("expected provider stamp stripe, got %q", session.Provider)
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	routed := &stubProvider{
		retrieveFn: func(ctx context.Context, req RetrieveSessionRequest) (SessionDetails, error) {
			return SessionDetails{ID: req.SessionID, Currency: "EUR"}, nil
		},
	}
	manager, err := NewManager(
		map[string]Provider{"stripe": &stubProvider{}, "adyen": routed},
		WithCurrencyRoutes(map[string]string{"eur": "adyen"}),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	details, err := manager.RetrieveSession(context.Background(), PaymentContext{Currency: "EUR"}, RetrieveSessionRequest{SessionID: "cs_eur"})
	if err != nil {
		t.Fatalf("RetrieveSession: %v", err)
	}
	if details.Currency != "EUR" {
		t.Fatalf("expected routed provider result, got %#v", details)
	}
}

func TestManagerUnknownPreferredFallsBack(t *testing.T) {
	manager, err := NewManager(map[string]Provider{"stripe": &stubProvider{}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.Refund(context.Background(), PaymentContext{PreferredProvider: "unknown"}, RefundRequest{IntentID: "pi_1"}); err != nil {
		t.Fatalf("expected fallback to sole provider, got %v", err)
	}
}

func TestManagerPropagatesProviderErrors(t *testing.T) {
	wantErr := errors.New("psp offline")
	manager, err := NewManager(map[string]Provider{"stripe": &stubProvider{
		lookupFn: func(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
			return PaymentDetails{}, wantErr
		},
	}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.LookupPayment(context.Background(), PaymentContext{}, LookupRequest{IntentID: "pi_1"}); !errors.Is(err, wantErr) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestSessionDetailsPaid(t *testing.T) {
	if !(SessionDetails{PaymentStatus: "paid"}).Paid() {
		t.Fatal("paid status should report paid")
	}
	if (SessionDetails{PaymentStatus: "unpaid"}).Paid() {
		t.Fatal("unpaid status should not report paid")
	}
}
