// Package shell implements the shell command execution tool: it runs a
// command through the system shell with a bounded timeout and captures
// combined stdout/stderr.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/tools/registry"
)

const toolName = "shell"

var toolParametersJSON = json.RawMessage(`{
	"type": "object",
	"properties": {"command": {"type": "string"}},
	"required": ["command"]
}`)

// Provider implements registry.FunctionProvider for shell execution.
type Provider struct {
	defaultTimeout time.Duration
	allowed        []string

	runs *prometheus.CounterVec
	dur  *prometheus.HistogramVec
}

var _ registry.FunctionProvider = (*Provider)(nil)

// New creates a Provider. allowedCommands restricts execution to commands
// whose text starts with one of the listed prefixes; a nil/empty list
// allows everything.
func New(defaultTimeout time.Duration, allowedCommands []string) *Provider {
	if defaultTimeout <= 0 {
		defaultTimeout = 60 * time.Second
	}
	return &Provider{
		defaultTimeout: defaultTimeout,
		allowed:        allowedCommands,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolstream_shell_runs_total",
				Help: "Total shell tool invocations by outcome",
			},
			[]string{"status"},
		),
		dur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolstream_shell_duration_seconds",
				Help:    "Shell command execution duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Executes a shell command and returns its combined output",
			Parameters:  toolParametersJSON,
		},
	}
}

func (p *Provider) CanExecute(name string) bool { return name == toolName }

func (p *Provider) isAllowed(command string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	for _, prefix := range p.allowed {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}

func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		p.runs.WithLabelValues("error").Inc()
		return &tools.ToolResult{CallID: call.ID, Output: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	if strings.TrimSpace(args.Command) == "" {
		p.runs.WithLabelValues("error").Inc()
		return &tools.ToolResult{CallID: call.ID, Output: "command is required", IsError: true}, nil
	}

	if !p.isAllowed(args.Command) {
		p.runs.WithLabelValues("error").Inc()
		return &tools.ToolResult{CallID: call.ID, Output: fmt.Sprintf("command %q is not in the allowed list", args.Command), IsError: true}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, p.defaultTimeout)
	defer cancel()

	shellPath, shellFlag := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shellPath, shellFlag = "cmd", "/C"
	}

	cmd := exec.CommandContext(runCtx, shellPath, shellFlag, args.Command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Seconds()

	if runCtx.Err() == context.DeadlineExceeded {
		p.runs.WithLabelValues("timeout").Inc()
		p.dur.WithLabelValues("timeout").Observe(elapsed)
		return &tools.ToolResult{CallID: call.ID, Output: fmt.Sprintf("command timed out after %s", p.defaultTimeout), IsError: true}, nil
	}
	if err != nil {
		p.runs.WithLabelValues("error").Inc()
		p.dur.WithLabelValues("error").Observe(elapsed)
		return &tools.ToolResult{CallID: call.ID, Output: fmt.Sprintf("%s\nexit error: %v", out.String(), err), IsError: true}, nil
	}

	p.runs.WithLabelValues("ok").Inc()
	p.dur.WithLabelValues("ok").Observe(elapsed)
	return &tools.ToolResult{CallID: call.ID, Output: out.String()}, nil
}

func (p *Provider) Routes() []registry.Route { return nil }

func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.runs, p.dur}
}

func (p *Provider) Close() error { return nil }
