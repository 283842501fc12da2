package profile_test

import (
	"strings"
	"testing"

	"github.com/arocore/core/common/spec/profile"
)

const minimalValid = `
apiVersion: aro-profile/v1
metadata:
  tenantId: tenant-health-1
`

const fullValid = `
apiVersion: aro-profile/v1
metadata:
  tenantId: tenant-health-1
  vertical: health
  description: Health clinic profile pack

messaging:
  maxMessagesPerCustomerPer24h: 3
  reminderOffsets: ["48h", "24h"]
  defaultTimezone: America/New_York

limits:
  depositThreshold: 70
  tenantRateLimitPerMinute: 30

templates:
  - name: reminder_48h
    channel: sms
    body: "Reminder: your appointment is in 48 hours."

commandMappings:
  - trigger: reminder.48h
    commandType: integration.twilio.send_sms
    template: reminder_48h
`

func TestParse_Minimal(t *testing.T) {
	pack, err := profile.Parse([]byte(minimalValid))
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	if pack.Metadata.TenantID != "tenant-health-1" {
		t.Errorf("Metadata.TenantID: got %q, want %q", pack.Metadata.TenantID, "tenant-health-1")
	}
}

func TestParse_Full(t *testing.T) {
	pack, err := profile.Parse([]byte(fullValid))
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	if len(pack.Templates) != 1 {
		t.Fatalf("Templates: got %d, want 1", len(pack.Templates))
	}
	if len(pack.CommandMappings) != 1 {
		t.Fatalf("CommandMappings: got %d, want 1", len(pack.CommandMappings))
	}
}

func TestParse_WrongAPIVersion(t *testing.T) {
	doc := strings.Replace(minimalValid, "aro-profile/v1", "aro-profile/v2", 1)
	_, err := profile.Parse([]byte(doc))
	if err == nil {
		t.Error("Parse: expected error for wrong apiVersion, got nil")
	}
}

func TestParse_MissingTenantID(t *testing.T) {
	doc := `
apiVersion: aro-profile/v1
metadata:
  vertical: health
`
	_, err := profile.Parse([]byte(doc))
	if err == nil {
		t.Error("Parse: expected error for missing tenantId, got nil")
	}
}

func TestParse_CommandMappingBadPrefix(t *testing.T) {
	doc := `
apiVersion: aro-profile/v1
metadata:
  tenantId: tenant-health-1
commandMappings:
  - trigger: reminder.48h
    commandType: twilio.send_sms
`
	_, err := profile.Parse([]byte(doc))
	if err == nil {
		t.Error("Parse: expected error for commandType missing integration. prefix, got nil")
	}
}

func TestParse_CommandMappingUnknownTemplate(t *testing.T) {
	doc := `
apiVersion: aro-profile/v1
metadata:
  tenantId: tenant-health-1
commandMappings:
  - trigger: reminder.48h
    commandType: integration.twilio.send_sms
    template: does_not_exist
`
	_, err := profile.Parse([]byte(doc))
	if err == nil {
		t.Error("Parse: expected error for unknown template reference, got nil")
	}
}

func TestParse_DuplicateTemplateName(t *testing.T) {
	doc := `
apiVersion: aro-profile/v1
metadata:
  tenantId: tenant-health-1
templates:
  - name: reminder_48h
    channel: sms
    body: "a"
  - name: reminder_48h
    channel: sms
    body: "b"
`
	_, err := profile.Parse([]byte(doc))
	if err == nil {
		t.Error("Parse: expected error for duplicate template name, got nil")
	}
}
