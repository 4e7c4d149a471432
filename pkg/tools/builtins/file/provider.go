// Package file implements the sandboxed filesystem tool: read, write,
// delete, and list_dir operations rooted at an optional sandbox directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/tools/registry"
)

const toolName = "file"

var toolParametersJSON = json.RawMessage(`{
	"type": "object",
	"properties": {
		"operation": {"type": "string", "enum": ["read", "write", "delete", "list_dir"]},
		"path": {"type": "string"},
		"content": {"type": "string"}
	},
	"required": ["operation", "path"]
}`)

// Provider implements registry.FunctionProvider for filesystem access.
//
// When root is non-empty every path is resolved relative to it and checked
// for containment before any syscall runs: an absolute input path outside
// the root, or one that walks out via "..", is rejected rather than silently
// clamped.
type Provider struct {
	root string

	ops *prometheus.CounterVec
}

var _ registry.FunctionProvider = (*Provider)(nil)

// New creates a Provider. root == "" disables sandboxing: paths are used
// as given, resolved against the process's working directory.
func New(root string) (*Provider, error) {
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("file: resolving sandbox root: %w", err)
		}
		root = abs
	}

	return &Provider{
		root: root,
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolstream_file_operations_total",
				Help: "Total file tool operations by type and outcome",
			},
			[]string{"operation", "status"},
		),
	}, nil
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Read, write, delete files, or list a directory within the sandbox",
			Parameters:  toolParametersJSON,
		},
	}
}

func (p *Provider) CanExecute(name string) bool { return name == toolName }

// resolve maps a caller-supplied path onto the real filesystem path,
// enforcing sandbox containment when a root is configured. Grounded on the
// Python tool's _resolve_path: relative paths are joined to the root;
// absolute paths (and any path that escapes via "..") must still resolve
// inside it.
func (p *Provider) resolve(path string) (string, error) {
	if p.root == "" {
		return filepath.Clean(path), nil
	}

	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Join(p.root, path)
	}

	rel, err := filepath.Rel(p.root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes sandbox root", path)
	}
	return candidate, nil
}

func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Operation string `json:"operation"`
		Path      string `json:"path"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return p.fail(args.Operation, call.ID, fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	resolved, err := p.resolve(args.Path)
	if err != nil {
		return p.fail(args.Operation, call.ID, err.Error()), nil
	}

	switch args.Operation {
	case "read":
		return p.read(call.ID, resolved)
	case "write":
		return p.write(call.ID, resolved, args.Content)
	case "delete":
		return p.delete(call.ID, resolved)
	case "list_dir":
		return p.listDir(call.ID, resolved)
	default:
		return p.fail(args.Operation, call.ID, fmt.Sprintf("unsupported operation %q", args.Operation)), nil
	}
}

func (p *Provider) read(callID, path string) (*tools.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return p.fail("read", callID, err.Error()), nil
	}
	p.ops.WithLabelValues("read", "ok").Inc()
	return &tools.ToolResult{CallID: callID, Output: string(data)}, nil
}

func (p *Provider) write(callID, path, content string) (*tools.ToolResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return p.fail("write", callID, err.Error()), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return p.fail("write", callID, err.Error()), nil
	}
	p.ops.WithLabelValues("write", "ok").Inc()
	return &tools.ToolResult{CallID: callID, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
}

func (p *Provider) delete(callID, path string) (*tools.ToolResult, error) {
	if err := os.Remove(path); err != nil {
		return p.fail("delete", callID, err.Error()), nil
	}
	p.ops.WithLabelValues("delete", "ok").Inc()
	return &tools.ToolResult{CallID: callID, Output: fmt.Sprintf("deleted %s", path)}, nil
}

func (p *Provider) listDir(callID, path string) (*tools.ToolResult, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return p.fail("list_dir", callID, err.Error()), nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	p.ops.WithLabelValues("list_dir", "ok").Inc()
	return &tools.ToolResult{CallID: callID, Output: strings.Join(names, "\n")}, nil
}

func (p *Provider) fail(operation, callID, msg string) *tools.ToolResult {
	p.ops.WithLabelValues(operation, "error").Inc()
	return &tools.ToolResult{CallID: callID, Output: msg, IsError: true}
}

func (p *Provider) Routes() []registry.Route { return nil }

func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.ops}
}

func (p *Provider) Close() error { return nil }
