// Package httprequest implements the generic bounded HTTP client tool:
// GET/POST/PUT/DELETE requests with a fixed timeout and response capture.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/tools/registry"
)

const toolName = "http_request"

var toolParametersJSON = json.RawMessage(`{
	"type": "object",
	"properties": {
		"method": {"type": "string", "enum": ["GET", "POST", "PUT", "DELETE"]},
		"url": {"type": "string"},
		"headers": {"type": "object"},
		"body": {"type": "string"}
	},
	"required": ["method", "url"]
}`)

var allowedMethods = map[string]bool{"GET": true, "POST": true, "PUT": true, "DELETE": true}

// Provider implements registry.FunctionProvider for generic HTTP requests.
type Provider struct {
	client         *http.Client
	defaultHeaders map[string]string

	requests *prometheus.CounterVec
}

var _ registry.FunctionProvider = (*Provider)(nil)

// New creates a Provider with the given request timeout and default headers
// merged into every request (per-call headers take precedence).
func New(timeout time.Duration, defaultHeaders map[string]string) *Provider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		client:         &http.Client{Timeout: timeout},
		defaultHeaders: defaultHeaders,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolstream_http_request_total",
				Help: "Total http_request tool calls by method and outcome",
			},
			[]string{"method", "status"},
		),
	}
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Makes an HTTP request and returns the status and body",
			Parameters:  toolParametersJSON,
		},
	}
}

func (p *Provider) CanExecute(name string) bool { return name == toolName }

func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Method  string            `json:"method"`
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return p.fail("", call.ID, fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	method := strings.ToUpper(args.Method)
	if !allowedMethods[method] {
		return p.fail(method, call.ID, fmt.Sprintf("unsupported HTTP method: %s", args.Method)), nil
	}
	if strings.TrimSpace(args.URL) == "" {
		return p.fail(method, call.ID, "url is required"), nil
	}

	var bodyReader io.Reader
	if args.Body != "" {
		bodyReader = bytes.NewBufferString(args.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, args.URL, bodyReader)
	if err != nil {
		return p.fail(method, call.ID, err.Error()), nil
	}
	for k, v := range p.defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.requests.WithLabelValues(method, "error").Inc()
		return &tools.ToolResult{CallID: call.ID, Output: fmt.Sprintf("request failed: %v", err), IsError: true}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		p.requests.WithLabelValues(method, "error").Inc()
		return &tools.ToolResult{CallID: call.ID, Output: fmt.Sprintf("reading response: %v", err), IsError: true}, nil
	}

	p.requests.WithLabelValues(method, "ok").Inc()
	output := fmt.Sprintf("status: %d\n\n%s", resp.StatusCode, string(data))
	return &tools.ToolResult{CallID: call.ID, Output: output, IsError: resp.StatusCode >= 400}, nil
}

func (p *Provider) fail(method, callID, msg string) *tools.ToolResult {
	p.requests.WithLabelValues(method, "error").Inc()
	return &tools.ToolResult{CallID: callID, Output: msg, IsError: true}
}

func (p *Provider) Routes() []registry.Route { return nil }

func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.requests}
}

func (p *Provider) Close() error { return nil }
