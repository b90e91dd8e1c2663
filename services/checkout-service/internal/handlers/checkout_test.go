package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wellnest-app/wellnest/libs/auth"
)

func newHandler(cfg Config) *Handler {
	return New(nil, nil, slog.Default(), cfg)
}

func TestCreateCheckout_NotConfigured(t *testing.T) {
	h := newHandler(Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"package":"single_session"}`))

	h.CreateCheckout(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without a stripe key, got %d", rec.Code)
	}
}

func TestCreateCheckout_UnsupportedPackage(t *testing.T) {
	h := newHandler(Config{StripeSecretKey: "sk_test_x"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"package":"lifetime"}`))
	req.Header.Set(auth.HeaderUserID, "u1")

	h.CreateCheckout(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown package, got %d", rec.Code)
	}
}

func TestCreateCheckout_MissingUserContext(t *testing.T) {
	h := newHandler(Config{StripeSecretKey: "sk_test_x"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"package":"pack_5"}`))

	h.CreateCheckout(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without user context, got %d", rec.Code)
	}
}

func TestStripeWebhook_NotConfigured(t *testing.T) {
	h := newHandler(Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/stripe/webhook", strings.NewReader(`{}`))

	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a webhook secret, got %d", rec.Code)
	}
}

func TestStripeWebhook_MissingSignature(t *testing.T) {
	h := newHandler(Config{StripeWebhookSecret: "whsec_x"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/stripe/webhook", strings.NewReader(`{}`))

	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a signature header, got %d", rec.Code)
	}
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	h := newHandler(Config{StripeWebhookSecret: "whsec_x"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/stripe/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a forged signature, got %d", rec.Code)
	}
}

func TestPackagePrices(t *testing.T) {
	for pkg, cents := range packagePrices {
		if cents <= 0 {
			t.Fatalf("package %q has non-positive price %d", pkg, cents)
		}
	}
	if _, ok := packagePrices["single_session"]; !ok {
		t.Fatal("single_session package missing")
	}
}
