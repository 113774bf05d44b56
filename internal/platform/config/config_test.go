package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":    "marketplace-test",
		"API_SHOPIFY_WEBHOOK_SECRET": "shpss_test",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "marketplace-test" {
		t.Fatalf("Firestore.ProjectID = %q, want fallback to Firebase project", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "marketplace-test" {
		t.Fatalf("Events.ProjectID = %q, want fallback to Firebase project", cfg.Events.ProjectID)
	}
	if cfg.Hours.OpenHour != 10 || cfg.Hours.CloseHour != 22 {
		t.Fatalf("Hours = %+v, want 10-22", cfg.Hours)
	}
	if cfg.Workflow.VendorAcceptWindow != 3*time.Hour {
		t.Fatalf("VendorAcceptWindow = %v, want 3h", cfg.Workflow.VendorAcceptWindow)
	}
	if cfg.Workflow.AdminPlanWindow != 30*time.Minute {
		t.Fatalf("AdminPlanWindow = %v, want 30m", cfg.Workflow.AdminPlanWindow)
	}
	if cfg.Shopify.HmacHeader != "X-Shopify-Hmac-Sha256" {
		t.Fatalf("Shopify.HmacHeader = %q", cfg.Shopify.HmacHeader)
	}
	if cfg.Events.Topic != "vendor-order-events" {
		t.Fatalf("Events.Topic = %q", cfg.Events.Topic)
	}
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_HOURS_OPEN"] = "8"
	env["API_HOURS_CLOSE"] = "20"
	env["API_WORKFLOW_ACCEPT_WINDOW"] = "4h"
	env["API_WORKFLOW_PLAN_WINDOW"] = "45m"
	env["API_ADMIN_ALLOWED_UIDS"] = "uid-a, uid-b"
	env["API_EVENTS_DISABLED"] = "true"

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Hours.OpenHour != 8 || cfg.Hours.CloseHour != 20 {
		t.Fatalf("Hours = %+v, want 8-20", cfg.Hours)
	}
	if cfg.Workflow.VendorAcceptWindow != 4*time.Hour {
		t.Fatalf("VendorAcceptWindow = %v, want 4h", cfg.Workflow.VendorAcceptWindow)
	}
	if cfg.Workflow.AdminPlanWindow != 45*time.Minute {
		t.Fatalf("AdminPlanWindow = %v, want 45m", cfg.Workflow.AdminPlanWindow)
	}
	if len(cfg.Admin.AllowedUIDs) != 2 || cfg.Admin.AllowedUIDs[0] != "uid-a" || cfg.Admin.AllowedUIDs[1] != "uid-b" {
		t.Fatalf("Admin.AllowedUIDs = %v", cfg.Admin.AllowedUIDs)
	}
	if !cfg.Events.Disabled {
		t.Fatalf("Events.Disabled = false, want true")
	}
}

func TestLoadValidation(t *testing.T) {
	env := baseEnv()
	delete(env, "API_FIREBASE_PROJECT_ID")
	env["API_HOURS_OPEN"] = "22"
	env["API_HOURS_CLOSE"] = "10"

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	wantFields := map[string]bool{}
	for _, f := range fields {
		wantFields[f] = true
	}
	if !wantFields["Firebase.ProjectID"] || !wantFields["Hours"] {
		t.Fatalf("validation fields = %v", fields)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["API_SHOPIFY_WEBHOOK_SECRET"] = "sm://projects/p/secrets/shopify-webhook/versions/latest"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/p/secrets/shopify-webhook/versions/latest" {
			t.Fatalf("unexpected ref %q", ref)
		}
		return "resolved-secret", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Shopify.WebhookSecret != "resolved-secret" {
		t.Fatalf("WebhookSecret = %q, want resolved value", cfg.Shopify.WebhookSecret)
	}
}

func TestLoadRequiredSecretMissing(t *testing.T) {
	env := baseEnv()
	delete(env, "API_SHOPIFY_WEBHOOK_SECRET")

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithRequiredSecrets("Shopify.WebhookSecret"),
	)

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	names := missing.Names()
	if len(names) != 1 || names[0] != "Shopify.WebhookSecret" {
		t.Fatalf("missing names = %v", names)
	}
}
