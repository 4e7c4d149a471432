package codeinterpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/tools/registry"
)

// Ensure CodeRunnerProvider implements FunctionProvider.
var _ registry.FunctionProvider = (*CodeRunnerProvider)(nil)

// Config holds configuration for the code runner provider.
type Config struct {
	// SandboxURL is the static URL of a sandbox server (development mode).
	// Mutually exclusive with SandboxTemplate.
	SandboxURL string

	// SandboxTemplate is the name of the SandboxTemplate CRD for SandboxClaim mode.
	// Mutually exclusive with SandboxURL.
	SandboxTemplate string

	// SandboxNamespace is the Kubernetes namespace for SandboxClaims.
	SandboxNamespace string

	// ExecutionTimeout is the default code execution timeout in seconds.
	ExecutionTimeout int

	// ClaimTimeout is how long to wait for a SandboxClaim to be bound (seconds).
	ClaimTimeout int
}

// SandboxAcquirer abstracts sandbox acquisition. Implementations exist for
// static URL mode (returns a fixed URL) and SandboxClaim mode (creates CRDs).
type SandboxAcquirer interface {
	// Acquire returns a sandbox URL to use for execution.
	// The release function must be called after execution to clean up.
	Acquire(ctx context.Context) (sandboxURL string, release func(), err error)
}

// CodeRunnerProvider is a FunctionProvider that runs a set of source files
// in a sandbox pod via the sandbox server REST API.
type CodeRunnerProvider struct {
	acquirer SandboxAcquirer
	client   *SandboxClient
	config   Config
}

// parseSettings builds a Config from the provider's settings map.
func parseSettings(settings map[string]any) (Config, error) {
	cfg := Config{
		ExecutionTimeout: 60,
		ClaimTimeout:     30,
	}

	if v, ok := settings["sandbox_url"].(string); ok && v != "" {
		cfg.SandboxURL = v
	}
	if v, ok := settings["sandbox_template"].(string); ok && v != "" {
		cfg.SandboxTemplate = v
	}
	if v, ok := settings["sandbox_namespace"].(string); ok && v != "" {
		cfg.SandboxNamespace = v
	}
	if v, ok := settings["execution_timeout"].(float64); ok && v > 0 {
		cfg.ExecutionTimeout = int(v)
	}
	if v, ok := settings["execution_timeout"].(int); ok && v > 0 {
		cfg.ExecutionTimeout = v
	}
	if v, ok := settings["claim_timeout"].(float64); ok && v > 0 {
		cfg.ClaimTimeout = int(v)
	}

	// Validate mutual exclusion.
	if cfg.SandboxURL != "" && cfg.SandboxTemplate != "" {
		return Config{}, fmt.Errorf("code_runner: sandbox_url and sandbox_template are mutually exclusive")
	}
	if cfg.SandboxURL == "" && cfg.SandboxTemplate == "" {
		return Config{}, fmt.Errorf("code_runner: either sandbox_url or sandbox_template must be set")
	}
	return cfg, nil
}

// New creates a CodeRunnerProvider in static-URL (development) mode.
func New(settings map[string]any) (*CodeRunnerProvider, error) {
	cfg, err := parseSettings(settings)
	if err != nil {
		return nil, err
	}

	if cfg.SandboxURL == "" {
		// SandboxClaim mode needs a Kubernetes-backed acquirer; the caller
		// constructs one (see the kubernetes subpackage) and passes it to
		// NewWithAcquirer so this package never imports client-go itself.
		return nil, fmt.Errorf("code_runner: sandbox_template mode requires an acquirer, use NewWithAcquirer")
	}

	return &CodeRunnerProvider{
		acquirer: &staticURLAcquirer{url: cfg.SandboxURL},
		client:   NewSandboxClient(),
		config:   cfg,
	}, nil
}

// NewWithAcquirer creates a CodeRunnerProvider that acquires sandboxes
// through the given acquirer, for SandboxClaim mode. Settings are parsed as
// in New; sandbox_url must not be set.
func NewWithAcquirer(settings map[string]any, acquirer SandboxAcquirer) (*CodeRunnerProvider, error) {
	cfg, err := parseSettings(settings)
	if err != nil {
		return nil, err
	}
	if cfg.SandboxURL != "" {
		return nil, fmt.Errorf("code_runner: sandbox_url and an external acquirer are mutually exclusive")
	}
	if acquirer == nil {
		return nil, fmt.Errorf("code_runner: acquirer must not be nil")
	}
	return &CodeRunnerProvider{
		acquirer: acquirer,
		client:   NewSandboxClient(),
		config:   cfg,
	}, nil
}

// Name returns the provider name.
func (p *CodeRunnerProvider) Name() string {
	return "code_runner"
}

// Tools returns the tool definitions for this provider.
func (p *CodeRunnerProvider) Tools() []api.ToolDefinition {
	params, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"files": map[string]any{
				"type":        "array",
				"description": "Source files to materialize in the sandbox before running",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path":    map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
					},
					"required": []string{"path", "content"},
				},
			},
			"main_file": map[string]any{
				"type":        "string",
				"description": "Path of the entry file to execute",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "Language runtime to use (default: python)",
			},
			"requirements": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Packages to install before execution (e.g., ['pandas', 'numpy'])",
			},
		},
		"required": []string{"files", "main_file"},
	})

	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        "code_runner",
			Description: "Run source files in an isolated sandbox. Use this to analyze data, perform calculations, or process files.",
			Parameters:  params,
		},
	}
}

// runnerArgs is the decoded argument shape for a code_runner call.
type runnerArgs struct {
	Files []struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	} `json:"files"`
	MainFile     string   `json:"main_file"`
	Language     string   `json:"language"`
	Requirements []string `json:"requirements"`
}

// Execute runs the code_runner tool.
func (p *CodeRunnerProvider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args runnerArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("invalid arguments: %v", err),
			IsError: true,
		}, nil
	}

	if len(args.Files) == 0 {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  "files is required",
			IsError: true,
		}, nil
	}
	if args.MainFile == "" {
		args.MainFile = args.Files[0].Path
	}
	if args.Language == "" {
		args.Language = "python"
	}

	files := make(map[string]string, len(args.Files))
	for _, f := range args.Files {
		if f.Path == "" {
			return &tools.ToolResult{
				CallID:  call.ID,
				Output:  "every file needs a path",
				IsError: true,
			}, nil
		}
		files[f.Path] = f.Content
	}
	if _, ok := files[args.MainFile]; !ok {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("main_file %q is not among the provided files", args.MainFile),
			IsError: true,
		}, nil
	}

	// Acquire a sandbox.
	sandboxURL, release, err := p.acquirer.Acquire(ctx)
	if err != nil {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("failed to acquire sandbox: %v", err),
			IsError: true,
		}, nil
	}
	defer release()

	// Execute in sandbox.
	resp, err := p.client.Execute(ctx, sandboxURL, &SandboxRequest{
		Files:          files,
		MainFile:       args.MainFile,
		Language:       args.Language,
		TimeoutSeconds: p.config.ExecutionTimeout,
		Requirements:   args.Requirements,
	})
	if err != nil {
		slog.Warn("code_runner execution failed",
			"call_id", call.ID,
			"error", err.Error(),
		)
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("sandbox execution failed: %v", err),
			IsError: true,
		}, nil
	}

	output := formatRunOutput(args.MainFile, resp)

	return &tools.ToolResult{
		CallID: call.ID,
		Output: output,
	}, nil
}

// CanExecute returns true for the code_runner tool.
func (p *CodeRunnerProvider) CanExecute(toolName string) bool {
	return toolName == "code_runner"
}

// Routes returns nil (no HTTP management routes for code_runner).
func (p *CodeRunnerProvider) Routes() []registry.Route {
	return nil
}

// Collectors returns nil (no custom Prometheus collectors).
func (p *CodeRunnerProvider) Collectors() []prometheus.Collector {
	return nil
}

// Close releases resources.
func (p *CodeRunnerProvider) Close() error {
	return nil
}

// formatRunOutput creates a JSON string matching the code_runner output
// format.
func formatRunOutput(mainFile string, resp *SandboxResponse) string {
	outputs := []api.CodeRunOutput{}

	// Add logs (stdout + stderr).
	logText := resp.Stdout
	if resp.Stderr != "" {
		if logText != "" {
			logText += "\n"
		}
		logText += resp.Stderr
	}
	if logText != "" {
		outputs = append(outputs, api.CodeRunOutput{
			Type: "logs",
			Logs: logText,
		})
	}

	// Add file outputs.
	for name := range resp.FilesProduced {
		ext := strings.ToLower(filepath.Ext(name))
		if ext == ".png" || ext == ".jpg" || ext == ".jpeg" || ext == ".svg" || ext == ".gif" {
			outputs = append(outputs, api.CodeRunOutput{
				Type: "image",
				Image: &api.CodeRunImage{
					FileID: name, // Use filename as file_id for now.
				},
			})
		} else {
			// Non-image files: include as logs with filename prefix.
			outputs = append(outputs, api.CodeRunOutput{
				Type: "logs",
				Logs: fmt.Sprintf("[file: %s]", name),
			})
		}
	}

	data := api.CodeRunData{
		MainFile: mainFile,
		Outputs:  outputs,
	}

	result, _ := json.Marshal(data)
	return string(result)
}

// staticURLAcquirer returns a fixed sandbox URL (development mode).
type staticURLAcquirer struct {
	url string
}

func (a *staticURLAcquirer) Acquire(_ context.Context) (string, func(), error) {
	return a.url, func() {}, nil // No cleanup needed for static URL.
}
