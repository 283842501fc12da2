package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/common/spec/executor"
	"github.com/arocore/core/common/spec/manifest"
	"github.com/arocore/core/internal/executor/runtime"
	"github.com/arocore/core/internal/executor/server"
	"github.com/arocore/core/internal/executor/store"
)

const sharedToken = "test-shared-token"

type fakeRuntime struct {
	calls  int
	result *runtime.Result
	err    error
}

func (f *fakeRuntime) Invoke(_ context.Context, _ runtime.Invocation) (*runtime.Result, error) {
	f.calls++
	return f.result, f.err
}

func testManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	data := []byte(`{
		"version": "v1",
		"allowedTenants": ["tenant-a"],
		"allowedCommands": ["integration.twilio.send_sms"]
	}`)
	m, err := manifest.Parse(data)
	if err != nil {
		t.Fatalf("manifest.Parse: %v", err)
	}
	return m
}

func newTestServer(t *testing.T, rt runtime.Runtime) *server.Server {
	t.Helper()
	dir := t.TempDir()
	idemp, err := store.OpenIdempotencyStore(filepath.Join(dir, "idempotency.json"))
	if err != nil {
		t.Fatalf("OpenIdempotencyStore: %v", err)
	}
	outbox, err := store.OpenOutbox(filepath.Join(dir, "outbox.json"))
	if err != nil {
		t.Fatalf("OpenOutbox: %v", err)
	}
	admission := server.NewAdmission(sharedToken, testManifest(t), 100)
	return server.New(":0", server.Config{}, admission, rt, idemp, outbox)
}

func newCommand() executor.Command {
	return executor.NewCommand("tenant-a", "corr-1", "integration.twilio.send_sms", "v1",
		map[string]interface{}{"to": "+15551234567"})
}

func doRequest(t *testing.T, s *server.Server, cmd executor.Command, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/executions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+sharedToken)
	req.Header.Set("X-Tenant-Id", cmd.TenantID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHandleExecutions_SuccessInvokesRuntimeAndWritesOutboxAndIdempotency(t *testing.T) {
	rt := &fakeRuntime{result: &runtime.Result{RuntimeMode: "external_cli", Output: map[string]interface{}{"messageId": "msg-1"}}}
	s := newTestServer(t, rt)
	cmd := newCommand()

	rec := doRequest(t, s, cmd, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rt.calls != 1 {
		t.Fatalf("expected runtime invoked once, got %d", rt.calls)
	}

	var evt envelope.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &evt); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if evt.EventType != executor.EventTypeSucceeded {
		t.Fatalf("eventType = %q, want %q", evt.EventType, executor.EventTypeSucceeded)
	}
}

func TestHandleExecutions_DuplicateExecutionIdSkipsRuntime(t *testing.T) {
	rt := &fakeRuntime{result: &runtime.Result{RuntimeMode: "external_cli", Output: map[string]interface{}{}}}
	s := newTestServer(t, rt)
	cmd := newCommand()

	first := doRequest(t, s, cmd, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}
	second := doRequest(t, s, cmd, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("second request status = %d", second.Code)
	}
	if rt.calls != 1 {
		t.Fatalf("expected runtime invoked exactly once across both requests, got %d", rt.calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical stored result on duplicate executionId")
	}
}

func TestHandleExecutions_MissingBearerTokenRejected(t *testing.T) {
	s := newTestServer(t, &fakeRuntime{result: &runtime.Result{Output: map[string]interface{}{}}})
	cmd := newCommand()
	body, _ := json.Marshal(cmd)
	req := httptest.NewRequest(http.MethodPost, "/v1/executions", bytes.NewReader(body))
	req.Header.Set("X-Tenant-Id", cmd.TenantID)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleExecutions_MissingTenantHeaderRejected(t *testing.T) {
	s := newTestServer(t, &fakeRuntime{result: &runtime.Result{Output: map[string]interface{}{}}})
	cmd := newCommand()
	body, _ := json.Marshal(cmd)
	req := httptest.NewRequest(http.MethodPost, "/v1/executions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+sharedToken)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var env envelope.ErrorEnvelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.Code != envelope.CodeTenantHeaderRequired {
		t.Fatalf("code = %q, want %q", env.Error.Code, envelope.CodeTenantHeaderRequired)
	}
}

func TestHandleExecutions_TenantMismatchRejected(t *testing.T) {
	s := newTestServer(t, &fakeRuntime{result: &runtime.Result{Output: map[string]interface{}{}}})
	cmd := newCommand()
	rec := doRequest(t, s, cmd, map[string]string{"X-Tenant-Id": "tenant-b"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var env envelope.ErrorEnvelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.Code != envelope.CodeTenantMismatch {
		t.Fatalf("code = %q, want %q", env.Error.Code, envelope.CodeTenantMismatch)
	}
}

func TestHandleExecutions_TenantNotAllowedRejected(t *testing.T) {
	s := newTestServer(t, &fakeRuntime{result: &runtime.Result{Output: map[string]interface{}{}}})
	cmd := executor.NewCommand("tenant-z", "corr-1", "integration.twilio.send_sms", "v1", nil)
	rec := doRequest(t, s, cmd, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var env envelope.ErrorEnvelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.Code != envelope.CodeTenantNotAllowed {
		t.Fatalf("code = %q, want %q", env.Error.Code, envelope.CodeTenantNotAllowed)
	}
}

func TestHandleExecutions_ManifestVersionMismatchRejected(t *testing.T) {
	s := newTestServer(t, &fakeRuntime{result: &runtime.Result{Output: map[string]interface{}{}}})
	cmd := executor.NewCommand("tenant-a", "corr-1", "integration.twilio.send_sms", "v2", nil)
	rec := doRequest(t, s, cmd, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var env envelope.ErrorEnvelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.Code != envelope.CodePermissionManifestMismatch {
		t.Fatalf("code = %q, want %q", env.Error.Code, envelope.CodePermissionManifestMismatch)
	}
}

func TestHandleExecutions_CommandNotAllowedRejected(t *testing.T) {
	s := newTestServer(t, &fakeRuntime{result: &runtime.Result{Output: map[string]interface{}{}}})
	cmd := executor.NewCommand("tenant-a", "corr-1", "integration.stripe.refund", "v1", nil)
	rec := doRequest(t, s, cmd, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var env envelope.ErrorEnvelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.Code != envelope.CodeCommandNotAllowed {
		t.Fatalf("code = %q, want %q", env.Error.Code, envelope.CodeCommandNotAllowed)
	}
}

func TestHandleExecutions_RuntimeFailureRecordsFailureEvent(t *testing.T) {
	rt := &fakeRuntime{err: context.DeadlineExceeded}
	s := newTestServer(t, rt)
	cmd := newCommand()

	rec := doRequest(t, s, cmd, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var evt envelope.Event
	json.Unmarshal(rec.Body.Bytes(), &evt)
	if evt.EventType != executor.EventTypeFailed {
		t.Fatalf("eventType = %q, want %q", evt.EventType, executor.EventTypeFailed)
	}
}
