package middleware

import (
	"encoding/json"
	"testing"
)

func TestRedactAuditBodyFundRoutes(t *testing.T) {
	body := []byte(`{"amount":"1000000","referral":"friend-123","nested":{"admin_key":"k"}}`)
	out := redactAuditBody("/v1/fund/deposits", body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["referral"] == "friend-123" {
		t.Fatalf("referral not redacted")
	}
	if data["amount"] != "1000000" {
		t.Fatalf("amount should survive redaction")
	}
	if nested, ok := data["nested"].(map[string]interface{}); ok {
		if nested["admin_key"] == "k" {
			t.Fatalf("admin key not redacted")
		}
	}
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	out := redactAuditBody("/health", body)
	if out != string(body) {
		t.Fatalf("unexpected redaction on non-sensitive path")
	}
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	body := []byte("not-json")
	out := redactAuditBody("/v1/fund/deposits", body)
	if out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json")
	}
}
