package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubVerifier struct {
	verify func(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

func (s *stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	return s.verify(ctx, idToken)
}

func tokenWithClaims(uid string, claims map[string]interface{}) *firebaseauth.Token {
	return &firebaseauth.Token{UID: uid, Claims: claims}
}

func TestRequireFirebaseAuthMissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{verify: func(context.Context, string) (*firebaseauth.Token, error) {
		t.Fatalf("verifier should not be called")
		return nil, nil
	}})

	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("next handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireFirebaseAuthSellerIdentity(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{verify: func(_ context.Context, idToken string) (*firebaseauth.Token, error) {
		if idToken != "valid-token" {
			t.Fatalf("unexpected token %q", idToken)
		}
		return tokenWithClaims("uid-seller", map[string]interface{}{
			"role":        "seller",
			"merchant_id": "merch_9",
			"email":       "seller@example.com",
		}), nil
	}})

	var captured *Identity
	handler := authn.RequireFirebaseAuth(RoleSeller)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if captured == nil {
		t.Fatalf("identity missing from context")
	}
	if captured.MerchantID != "merch_9" {
		t.Fatalf("MerchantID = %q", captured.MerchantID)
	}
	if !captured.HasRole(RoleSeller) {
		t.Fatalf("expected seller role, got %v", captured.Roles)
	}
}

func TestRequireFirebaseAuthRoleGate(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{verify: func(context.Context, string) (*firebaseauth.Token, error) {
		return tokenWithClaims("uid-seller", map[string]interface{}{"role": "seller"}), nil
	}})

	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("next handler should not run")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireFirebaseAuthAdminAllowlist(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{verify: func(context.Context, string) (*firebaseauth.Token, error) {
		return tokenWithClaims("uid-ops", map[string]interface{}{}), nil
	}}, WithAdminAllowlist([]string{"uid-ops"}))

	var captured *Identity
	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if captured == nil || !captured.IsAdmin() {
		t.Fatalf("expected allow-listed admin identity, got %+v", captured)
	}
}

func TestRequireFirebaseAuthFallbackRole(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{verify: func(context.Context, string) (*firebaseauth.Token, error) {
		return tokenWithClaims("uid-new", map[string]interface{}{}), nil
	}})

	var captured *Identity
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured == nil || !captured.HasRole(RoleSeller) {
		t.Fatalf("expected fallback seller role, got %+v", captured)
	}
}
