package executorclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arocore/core/common/spec/executor"
	"github.com/arocore/core/internal/core/executorclient"
)

func TestClient_SendsBearerTenantAndManifestVersion(t *testing.T) {
	var gotAuth, gotTenant string
	var gotCmd executor.Command
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTenant = r.Header.Get("X-Tenant-Id")
		json.NewDecoder(r.Body).Decode(&gotCmd)
		json.NewEncoder(w).Encode(executor.NewResultEvent(gotCmd, "gateway_tools_invoke", map[string]interface{}{"messageId": "msg-1"}))
	}))
	defer ts.Close()

	c := executorclient.New(executorclient.Config{BaseURL: ts.URL, SharedToken: "shared-tok", ManifestVersion: "v1"})

	evt, err := c.Execute(context.Background(), "exec-1", "tenant-a", "corr-1", "integration.twilio.send_sms",
		map[string]interface{}{"to": "+15551234567"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotAuth != "Bearer shared-tok" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer shared-tok")
	}
	if gotTenant != "tenant-a" {
		t.Errorf("X-Tenant-Id = %q, want %q", gotTenant, "tenant-a")
	}
	if gotCmd.PermissionManifestVersion != "v1" {
		t.Errorf("permissionManifestVersion = %q, want v1", gotCmd.PermissionManifestVersion)
	}
	if !gotCmd.AuthorizedByCore {
		t.Error("expected authorizedByCore=true on the outgoing command")
	}
	if evt.EventType != executor.EventTypeSucceeded {
		t.Errorf("eventType = %q, want %q", evt.EventType, executor.EventTypeSucceeded)
	}
}

func TestClient_NonOKStatusIncludesBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("tenant not allowed"))
	}))
	defer ts.Close()

	c := executorclient.New(executorclient.Config{BaseURL: ts.URL, SharedToken: "tok"})
	_, err := c.Execute(context.Background(), "exec-1", "tenant-z", "corr-1", "integration.twilio.send_sms", nil)
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "tenant not allowed") {
		t.Errorf("expected error to include response body, got: %v", err)
	}
}

func TestClient_FailedExecutionIsNotATransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd executor.Command
		json.NewDecoder(r.Body).Decode(&cmd)
		json.NewEncoder(w).Encode(executor.NewFailureEvent(cmd, "external_cli", "agent exited 1: boom"))
	}))
	defer ts.Close()

	c := executorclient.New(executorclient.Config{BaseURL: ts.URL, SharedToken: "tok"})
	evt, err := c.Execute(context.Background(), "exec-1", "tenant-a", "corr-1", "integration.twilio.send_sms", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if evt.EventType != executor.EventTypeFailed {
		t.Errorf("eventType = %q, want %q", evt.EventType, executor.EventTypeFailed)
	}
}

func TestClient_MissingBaseURLFailsFast(t *testing.T) {
	c := executorclient.New(executorclient.Config{})
	if _, err := c.Execute(context.Background(), "exec-1", "tenant-a", "corr-1", "integration.twilio.send_sms", nil); err == nil {
		t.Fatal("expected error when no base URL is configured")
	}
}
