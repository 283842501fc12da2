// Package executorclient is the Core Engine's HTTP client for the
// Executor's POST /v1/executions endpoint. It is the one place in the Core
// process that crosses into the separate Executor process; the dispatch
// worker and the synchronous classification path both call it rather than
// invoking any side effect locally.
package executorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/common/spec/executor"
)

// maxResponseBytes bounds how much of the Executor's response body is read,
// mirroring the cap the gateway runtime applies to its own HTTP calls.
const maxResponseBytes = 1 << 20

// Config configures Client.
type Config struct {
	BaseURL         string
	SharedToken     string
	ManifestVersion string
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Client posts Executor commands to a single configured Executor instance.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	sharedToken     string
	manifestVersion string
}

// New builds a Client. A zero-value Timeout defaults to 10s, matching the
// bound §5 of the request pipeline places on every outbound I/O call.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient:      httpClient,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		sharedToken:     cfg.SharedToken,
		manifestVersion: cfg.ManifestVersion,
	}
}

// Execute builds an Executor command envelope for executionID/commandType/
// payload and POSTs it to <baseURL>/v1/executions, returning the canonical
// result event the Executor emits (executor.command.succeeded or .failed).
// A non-2xx response or transport failure is the only thing that produces
// an error here; a business-level failure is still a 200 carrying an
// executor.command.failed event, which the caller records like any other
// event rather than retrying the dispatch.
func (c *Client) Execute(ctx context.Context, executionID, tenantID, correlationID, commandType string, payload map[string]interface{}) (*envelope.Event, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("executorclient: no Executor base URL configured")
	}

	cmd := executor.Command{
		ExecutionID:               executionID,
		TenantID:                  tenantID,
		CorrelationID:             correlationID,
		CommandType:               commandType,
		AuthorizedByCore:          true,
		PermissionManifestVersion: c.manifestVersion,
		Payload:                   payload,
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("executorclient: marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/executions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("executorclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.sharedToken)
	req.Header.Set("X-Tenant-Id", tenantID)
	req.Header.Set("X-Correlation-Id", correlationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executorclient: call executor: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("executorclient: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("executorclient: execute %s: status %d: %s", commandType, resp.StatusCode, string(data))
	}

	var evt envelope.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("executorclient: decode result event: %w", err)
	}
	return &evt, nil
}
