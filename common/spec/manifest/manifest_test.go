package manifest_test

import (
	"testing"

	"github.com/arocore/core/common/spec/manifest"
)

const validDoc = `{
  "version": "2026-01",
  "allowedTenants": ["tenant-health-1"],
  "allowedCommands": ["integration.twilio.send_sms", "integration.nlp.classify_reply"]
}`

func TestParse_Valid(t *testing.T) {
	m, err := manifest.Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	if m.Version != "2026-01" {
		t.Errorf("Version: got %q, want %q", m.Version, "2026-01")
	}
	if !m.AllowsTenant("tenant-health-1") {
		t.Error("AllowsTenant: expected true for allow-listed tenant")
	}
	if m.AllowsTenant("tenant-unknown") {
		t.Error("AllowsTenant: expected false for unlisted tenant")
	}
	if !m.AllowsCommand("integration.twilio.send_sms") {
		t.Error("AllowsCommand: expected true for allow-listed command")
	}
	if m.AllowsCommand("integration.stripe.charge") {
		t.Error("AllowsCommand: expected false for unlisted command")
	}
}

func TestParse_MissingVersion(t *testing.T) {
	_, err := manifest.Parse([]byte(`{"allowedTenants":["t1"],"allowedCommands":["c1"]}`))
	if err == nil {
		t.Error("Parse: expected schema validation error for missing version, got nil")
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := manifest.Parse([]byte(`{not json`))
	if err == nil {
		t.Error("Parse: expected error for malformed JSON, got nil")
	}
}

func TestParse_EmptyAllowedTenants(t *testing.T) {
	m, err := manifest.Parse([]byte(`{"version":"v1","allowedTenants":[],"allowedCommands":[]}`))
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	if m.AllowsTenant("anything") {
		t.Error("AllowsTenant: expected false when allow-list is empty")
	}
}
