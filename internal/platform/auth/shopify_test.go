package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func signBody(t *testing.T, secret string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyBody(t *testing.T) {
	verifier, err := NewShopifyWebhookVerifier("shpss_secret")
	if err != nil {
		t.Fatalf("NewShopifyWebhookVerifier: %v", err)
	}
	body := []byte(`{"id":123}`)

	if err := verifier.VerifyBody(body, signBody(t, "shpss_secret", body)); err != nil {
		t.Fatalf("valid digest rejected: %v", err)
	}

	if err := verifier.VerifyBody(body, signBody(t, "wrong-secret", body)); !errors.Is(err, ErrWebhookSignatureInvalid) {
		t.Fatalf("expected ErrWebhookSignatureInvalid, got %v", err)
	}

	if err := verifier.VerifyBody(body, ""); !errors.Is(err, ErrWebhookSignatureMissing) {
		t.Fatalf("expected ErrWebhookSignatureMissing, got %v", err)
	}

	tampered := []byte(`{"id":456}`)
	if err := verifier.VerifyBody(tampered, signBody(t, "shpss_secret", body)); !errors.Is(err, ErrWebhookSignatureInvalid) {
		t.Fatalf("expected tampered body rejection, got %v", err)
	}
}

func TestVerifyRequestPreservesBody(t *testing.T) {
	verifier, err := NewShopifyWebhookVerifier("shpss_secret")
	if err != nil {
		t.Fatalf("NewShopifyWebhookVerifier: %v", err)
	}

	payload := `{"id":7001,"order_number":1042}`
	req := httptest.NewRequest("POST", "/webhooks/shopify/orders", strings.NewReader(payload))
	req.Header.Set(ShopifyHmacHeader, signBody(t, "shpss_secret", []byte(payload)))

	body, err := verifier.VerifyRequest(req)
	if err != nil {
		t.Fatalf("VerifyRequest: %v", err)
	}
	if string(body) != payload {
		t.Fatalf("returned body = %q", body)
	}

	// The request body must remain readable downstream.
	again, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("re-read body: %v", err)
	}
	if string(again) != payload {
		t.Fatalf("re-read body = %q", again)
	}
}

func TestVerifyRequestRejectsBadSignature(t *testing.T) {
	verifier, err := NewShopifyWebhookVerifier("shpss_secret")
	if err != nil {
		t.Fatalf("NewShopifyWebhookVerifier: %v", err)
	}

	req := httptest.NewRequest("POST", "/webhooks/shopify/orders", strings.NewReader(`{}`))
	req.Header.Set(ShopifyHmacHeader, "bm90LXRoZS1yaWdodC1kaWdlc3Q=")

	if _, err := verifier.VerifyRequest(req); !errors.Is(err, ErrWebhookSignatureInvalid) {
		t.Fatalf("expected ErrWebhookSignatureInvalid, got %v", err)
	}
}

func TestEventKey(t *testing.T) {
	if got := EventKey("wh_123", "orders/create", "7001"); got != "wh_123" {
		t.Fatalf("EventKey with webhook id = %q", got)
	}
	if got := EventKey("", "orders/create", "7001"); got != "orders/create:7001" {
		t.Fatalf("EventKey fallback = %q", got)
	}
	if got := EventKey("  ", "orders/updated", "8002"); got != "orders/updated:8002" {
		t.Fatalf("EventKey trims webhook id, got %q", got)
	}
}
