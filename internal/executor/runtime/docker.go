package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// agentPreamble is prepended to every CLI-subprocess invocation so the
// untrusted runtime is told, in its own input, the bound of what it is
// authorized to do. Core's own authorization already constrains the
// command; this is a second, explicit instruction to the agent itself.
const agentPreamble = "execute exactly one Core-authorized side effect; do not initiate further workflows or mutate business state"

// ModeCLISubprocess is the RuntimeMode value stamped on results produced by
// DockerRuntime.
const ModeCLISubprocess = "external_cli"

// DockerRuntime invokes the agent runtime as a one-shot, disposable
// container running the "openclaw agent" CLI, rather than a bare
// subprocess, so the untrusted runtime never runs directly on the Executor
// host. Each invocation creates, starts, waits on, and removes a single
// container.
type DockerRuntime struct {
	client    *dockerclient.Client
	image     string
	network   string
	agentID   string
	localMode bool
}

// DockerRuntimeConfig configures DockerRuntime.
type DockerRuntimeConfig struct {
	Image     string
	Network   string
	AgentID   string
	LocalMode bool
}

// NewDockerRuntime builds a DockerRuntime using the ambient Docker host
// (DOCKER_HOST env var or the default socket), mirroring the Docker client
// construction used elsewhere for agent container lifecycle management.
func NewDockerRuntime(cfg DockerRuntimeConfig) (*DockerRuntime, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: docker client: %w", err)
	}
	return &DockerRuntime{
		client:    cli,
		image:     cfg.Image,
		network:   cfg.Network,
		agentID:   cfg.AgentID,
		localMode: cfg.LocalMode,
	}, nil
}

type agentMessage struct {
	Preamble      string                 `json:"preamble"`
	ExecutionID   string                 `json:"executionId"`
	TenantID      string                 `json:"tenantId"`
	CorrelationID string                 `json:"correlationId"`
	CommandType   string                 `json:"commandType"`
	Payload       map[string]interface{} `json:"payload"`
}

// Invoke runs `openclaw agent --agent <id> --message <envelope> --json
// --timeout <sec> [--local]` inside a fresh container, killing it with
// SIGTERM if inv.Timeout elapses first.
func (r *DockerRuntime) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := json.Marshal(agentMessage{
		Preamble:      agentPreamble,
		ExecutionID:   inv.ExecutionID,
		TenantID:      inv.TenantID,
		CorrelationID: inv.CorrelationID,
		CommandType:   inv.CommandType,
		Payload:       inv.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: marshal agent message: %w", err)
	}

	cmd := []string{
		"openclaw", "agent",
		"--agent", r.agentID,
		"--message", string(msg),
		"--json",
		"--timeout", strconv.Itoa(int(timeout.Seconds())),
	}
	if r.localMode {
		cmd = append(cmd, "--local")
	}

	containerCfg := &container.Config{
		Image: r.image,
		Cmd:   cmd,
	}
	hostCfg := &container.HostConfig{
		AutoRemove: false, // removed explicitly below, after logs are read
	}
	var networkCfg *network.NetworkingConfig
	if r.network != "" {
		networkCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{r.network: {}},
		}
	}

	resp, err := r.client.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, "")
	if err != nil {
		return nil, fmt.Errorf("runtime: create container: %w", err)
	}
	defer r.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("runtime: start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-ctx.Done():
		timeoutSec := 5
		r.client.ContainerStop(context.Background(), resp.ID, container.StopOptions{Timeout: &timeoutSec})
		return nil, fmt.Errorf("runtime: invocation %s timed out after %s", inv.ExecutionID, timeout)
	case waitErr := <-errCh:
		return nil, fmt.Errorf("runtime: wait for container: %w", waitErr)
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	stdout, stderr, err := r.readLogs(resp.ID)
	if err != nil {
		return nil, fmt.Errorf("runtime: read container logs: %w", err)
	}

	if exitCode != 0 {
		return nil, fmt.Errorf("runtime: agent exited %d: %s", exitCode, stderr)
	}

	output := map[string]interface{}{}
	if err := json.Unmarshal(stdout, &output); err != nil {
		output = map[string]interface{}{"text": string(stdout)}
	}
	return &Result{RuntimeMode: ModeCLISubprocess, Output: output}, nil
}

func (r *DockerRuntime) readLogs(containerID string) (stdout, stderr []byte, err error) {
	reader, err := r.client.ContainerLogs(context.Background(), containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, nil, err
	}
	defer reader.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, reader); err != nil && err != io.EOF {
		return nil, nil, err
	}
	return bytes.TrimSpace(outBuf.Bytes()), bytes.TrimSpace(errBuf.Bytes()), nil
}
