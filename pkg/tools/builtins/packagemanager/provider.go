// Package packagemanager implements the package_manager tool: install,
// remove, and list operations delegated to the Go module toolchain.
package packagemanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/tools/registry"
)

const toolName = "package_manager"

var toolParametersJSON = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["install", "remove", "list"]},
		"package": {"type": "string"}
	},
	"required": ["action"]
}`)

// Provider implements registry.FunctionProvider, driving `go get`/`go mod
// edit -droprequire`/`go list -m all` against a target module directory.
type Provider struct {
	moduleDir string
	timeout   time.Duration

	actions *prometheus.CounterVec
}

var _ registry.FunctionProvider = (*Provider)(nil)

// New creates a Provider that operates on the module rooted at moduleDir.
func New(moduleDir string, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		moduleDir: moduleDir,
		timeout:   timeout,
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolstream_package_manager_actions_total",
				Help: "Total package_manager tool actions by type and outcome",
			},
			[]string{"action", "status"},
		),
	}
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Installs, removes, or lists Go module dependencies",
			Parameters:  toolParametersJSON,
		},
	}
}

func (p *Provider) CanExecute(name string) bool { return name == toolName }

func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Action  string `json:"action"`
		Package string `json:"package"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return p.fail(args.Action, call.ID, fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	switch args.Action {
	case "install":
		if strings.TrimSpace(args.Package) == "" {
			return p.fail(args.Action, call.ID, "package is required for install"), nil
		}
		return p.run(ctx, call.ID, "install", "go", "get", args.Package)
	case "remove":
		if strings.TrimSpace(args.Package) == "" {
			return p.fail(args.Action, call.ID, "package is required for remove"), nil
		}
		return p.run(ctx, call.ID, "remove", "go", "mod", "edit", "-droprequire="+args.Package)
	case "list":
		return p.run(ctx, call.ID, "list", "go", "list", "-m", "all")
	default:
		return p.fail(args.Action, call.ID, fmt.Sprintf("unsupported action %q", args.Action)), nil
	}
}

func (p *Provider) run(ctx context.Context, callID, action, name string, cmdArgs ...string) (*tools.ToolResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, cmdArgs...)
	cmd.Dir = p.moduleDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		p.actions.WithLabelValues(action, "error").Inc()
		return &tools.ToolResult{CallID: callID, Output: fmt.Sprintf("%s\n%v", out.String(), err), IsError: true}, nil
	}

	p.actions.WithLabelValues(action, "ok").Inc()
	return &tools.ToolResult{CallID: callID, Output: out.String()}, nil
}

func (p *Provider) fail(action, callID, msg string) *tools.ToolResult {
	p.actions.WithLabelValues(action, "error").Inc()
	return &tools.ToolResult{CallID: callID, Output: msg, IsError: true}
}

func (p *Provider) Routes() []registry.Route { return nil }

func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.actions}
}

func (p *Provider) Close() error { return nil }
