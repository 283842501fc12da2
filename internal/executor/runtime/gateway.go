package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/arocore/core/common/trace"
)

// ModeGatewayToolsInvoke is the RuntimeMode value stamped on results
// produced by GatewayRuntime.
const ModeGatewayToolsInvoke = "gateway_tools_invoke"

// maxGatewayResponseBytes bounds how much of a gateway response body gets
// read, so a misbehaving or compromised gateway can't exhaust memory.
const maxGatewayResponseBytes = 1 << 20 // 1 MiB

// ToolMapping names the tool (and optional action) a commandType invokes
// on the gateway. A commandType with no mapping cannot be dispatched.
type ToolMapping struct {
	Tool   string
	Action string
}

// GatewayRuntime invokes the agent runtime over HTTP, POSTing to a fixed
// "/tools/invoke" endpoint on an already-running gateway process instead
// of spawning a container per call.
type GatewayRuntime struct {
	httpClient *http.Client
	baseURL    string
	token      string
	mappings   map[string]ToolMapping
}

// GatewayRuntimeConfig configures GatewayRuntime.
type GatewayRuntimeConfig struct {
	BaseURL    string
	Token      string
	Mappings   map[string]ToolMapping
	HTTPClient *http.Client
}

// NewGatewayRuntime builds a GatewayRuntime. A nil HTTPClient in cfg falls
// back to http.DefaultClient.
func NewGatewayRuntime(cfg GatewayRuntimeConfig) *GatewayRuntime {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &GatewayRuntime{
		httpClient: client,
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		mappings:   cfg.Mappings,
	}
}

type invokeArgs struct {
	ExecutionID   string                 `json:"executionId"`
	TenantID      string                 `json:"tenantId"`
	CorrelationID string                 `json:"correlationId"`
	CommandType   string                 `json:"commandType"`
	Payload       map[string]interface{} `json:"payload"`
}

type invokeRequest struct {
	Tool   string     `json:"tool"`
	Action string     `json:"action,omitempty"`
	Args   invokeArgs `json:"args"`
}

// Invoke resolves inv.CommandType to a tool mapping and POSTs it to
// <baseURL>/tools/invoke, honoring ctx's deadline.
func (r *GatewayRuntime) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	mapping, ok := r.mappings[inv.CommandType]
	if !ok {
		return nil, fmt.Errorf("runtime: no gateway tool mapping for command type %q", inv.CommandType)
	}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(invokeRequest{
		Tool:   mapping.Tool,
		Action: mapping.Action,
		Args: invokeArgs{
			ExecutionID:   inv.ExecutionID,
			TenantID:      inv.TenantID,
			CorrelationID: inv.CorrelationID,
			CommandType:   inv.CommandType,
			Payload:       inv.Payload,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: marshal gateway request: %w", err)
	}

	url := r.baseURL + "/tools/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("runtime: build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)
	correlationID := inv.CorrelationID
	if correlationID == "" {
		correlationID = trace.GenerateID()
	}
	req.Header.Set("X-Correlation-Id", correlationID)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runtime: gateway request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("runtime: read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runtime: gateway returned %d: %s", resp.StatusCode, string(respBody))
	}

	output := map[string]interface{}{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &output); err != nil {
			output = map[string]interface{}{"text": string(respBody)}
		}
	}
	return &Result{RuntimeMode: ModeGatewayToolsInvoke, Output: output}, nil
}
