package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arocore/core/common/crypto"
	"github.com/arocore/core/common/environment"
	"github.com/arocore/core/common/spec/manifest"
	"github.com/arocore/core/common/version"
	"github.com/arocore/core/internal/executor/runtime"
	"github.com/arocore/core/internal/executor/secrets"
	"github.com/arocore/core/internal/executor/server"
	"github.com/arocore/core/internal/executor/store"
)

const (
	modeExternalCLI        = "external_cli"
	modeGatewayToolsInvoke = "gateway_tools_invoke"
)

func main() {
	fmt.Printf("ARO Executor %s (%s) built at %s\n", version.Version, version.GitCommit, version.BuildTime)

	sharedToken, err := loadSharedToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load shared token: %v\n", err)
		os.Exit(1)
	}

	m, err := loadManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load permission manifest: %v\n", err)
		os.Exit(1)
	}

	idempPath := environment.StringOr("OPENCLAW_IDEMPOTENCY_STORE_FILE", "./executor-idempotency.json")
	idemp, err := store.OpenIdempotencyStore(idempPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open idempotency store: %v\n", err)
		os.Exit(1)
	}

	outboxPath := environment.StringOr("OPENCLAW_OUTBOX_FILE", "./executor-outbox.json")
	outbox, err := store.OpenOutbox(outboxPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open outbox: %v\n", err)
		os.Exit(1)
	}

	rt, err := loadRuntime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure runtime: %v\n", err)
		os.Exit(1)
	}

	tenantRateLimit := environment.IntOr("OPENCLAW_TENANT_RATE_LIMIT_PER_MINUTE", 30)
	admission := server.NewAdmission(sharedToken, m, tenantRateLimit)

	addr := environment.StringOr("HTTP_ADDR", ":8081")
	invokeTimeout := time.Duration(environment.IntOr("OPENCLAW_AGENT_TIMEOUT_SECONDS", 30)) * time.Second

	s := server.New(addr, server.Config{InvokeTimeout: invokeTimeout}, admission, rt, idemp, outbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start Executor: %v\n", err)
		os.Exit(1)
	}
	defer s.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

// loadSharedToken resolves the bearer token Core presents on every
// executions call. When OPENCLAW_SEALED_SECRETS_FILE is set, the token (and
// any other sealed credential) is decrypted from that bundle under
// OPENCLAW_MASTER_KEY rather than read in the clear from the environment.
func loadSharedToken() (string, error) {
	sealedPath := environment.StringOr("OPENCLAW_SEALED_SECRETS_FILE", "")
	if sealedPath == "" {
		provider := secrets.EnvProvider{Prefix: "OPENCLAW_"}
		return provider.Get("SHARED_TOKEN")
	}

	masterKey := crypto.MustLoadMasterKey()
	provider, err := secrets.NewVaultProvider(sealedPath, masterKey)
	if err != nil {
		return "", fmt.Errorf("load sealed secrets bundle: %w", err)
	}
	return provider.Get("SHARED_TOKEN")
}

func loadManifest() (*manifest.Manifest, error) {
	path := environment.StringOr("OPENCLAW_PERMISSION_MANIFEST_FILE", "")
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read permission manifest file %s: %w", path, err)
		}
		return manifest.Parse(data)
	}

	doc := map[string]interface{}{
		"version":         environment.StringOr("OPENCLAW_PERMISSION_MANIFEST_VERSION", "v1"),
		"allowedTenants":  environment.StringSliceOr("OPENCLAW_ALLOWED_TENANTS", []string{}),
		"allowedCommands": environment.StringSliceOr("OPENCLAW_ALLOWED_COMMANDS", []string{}),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest from environment: %w", err)
	}
	return manifest.Parse(data)
}

func loadRuntime() (runtime.Runtime, error) {
	mode := environment.StringOr("OPENCLAW_RUNTIME_MODE", modeExternalCLI)
	switch mode {
	case modeExternalCLI:
		return runtime.NewDockerRuntime(runtime.DockerRuntimeConfig{
			Image:     environment.StringOr("OPENCLAW_AGENT_IMAGE", "openclaw/agent:latest"),
			Network:   environment.StringOr("OPENCLAW_AGENT_NETWORK", ""),
			AgentID:   environment.StringOr("OPENCLAW_AGENT_ID", ""),
			LocalMode: environment.BoolOr("OPENCLAW_AGENT_LOCAL_MODE", false),
		})
	case modeGatewayToolsInvoke:
		mappings, err := loadGatewayMappings()
		if err != nil {
			return nil, err
		}
		return runtime.NewGatewayRuntime(runtime.GatewayRuntimeConfig{
			BaseURL:  environment.StringOr("OPENCLAW_GATEWAY_URL", ""),
			Token:    environment.StringOr("OPENCLAW_GATEWAY_TOKEN", ""),
			Mappings: mappings,
		}), nil
	default:
		return nil, fmt.Errorf("unknown OPENCLAW_RUNTIME_MODE %q (want %q or %q)", mode, modeExternalCLI, modeGatewayToolsInvoke)
	}
}

func loadGatewayMappings() (map[string]runtime.ToolMapping, error) {
	raw := environment.StringOr("OPENCLAW_GATEWAY_TOOL_MAPPINGS", "{}")
	var parsed map[string]struct {
		Tool   string `json:"tool"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse OPENCLAW_GATEWAY_TOOL_MAPPINGS: %w", err)
	}
	mappings := make(map[string]runtime.ToolMapping, len(parsed))
	for commandType, m := range parsed {
		mappings[commandType] = runtime.ToolMapping{Tool: m.Tool, Action: m.Action}
	}
	return mappings, nil
}
