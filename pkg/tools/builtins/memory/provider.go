// Package memory implements the memory tool: a Redis-backed key/value
// store namespaced per stream so concurrent streams never collide.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/tools/registry"
)

const toolName = "memory"

var toolParametersJSON = json.RawMessage(`{
	"type": "object",
	"properties": {
		"operation": {"type": "string", "enum": ["write", "read", "list"]},
		"key": {"type": "string"},
		"value": {"type": "string"}
	},
	"required": ["operation"]
}`)

// Provider implements registry.FunctionProvider for the key/value memory
// tool. Each stream gets its own namespace, keyed by streamID, so the
// underlying Redis keyspace is "streamID:key".
type Provider struct {
	client   *redis.Client
	streamID string

	ops *prometheus.CounterVec
}

var _ registry.FunctionProvider = (*Provider)(nil)

// New creates a Provider backed by client, scoped to streamID's namespace.
func New(client *redis.Client, streamID string) *Provider {
	return &Provider{
		client:   client,
		streamID: streamID,
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolstream_memory_operations_total",
				Help: "Total memory tool operations by type and outcome",
			},
			[]string{"operation", "status"},
		),
	}
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Writes, reads, or lists key/value pairs scoped to this conversation",
			Parameters:  toolParametersJSON,
		},
	}
}

func (p *Provider) CanExecute(name string) bool { return name == toolName }

func (p *Provider) namespacedKey(key string) string {
	return p.streamID + ":" + key
}

func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Operation string `json:"operation"`
		Key       string `json:"key"`
		Value     string `json:"value"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return p.fail(args.Operation, call.ID, fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	switch args.Operation {
	case "write":
		if args.Key == "" {
			return p.fail("write", call.ID, "key is required"), nil
		}
		if err := p.client.Set(ctx, p.namespacedKey(args.Key), args.Value, 0).Err(); err != nil {
			return p.fail("write", call.ID, err.Error()), nil
		}
		p.ops.WithLabelValues("write", "ok").Inc()
		return &tools.ToolResult{CallID: call.ID, Output: fmt.Sprintf("stored %q", args.Key)}, nil

	case "read":
		if args.Key == "" {
			return p.fail("read", call.ID, "key is required"), nil
		}
		val, err := p.client.Get(ctx, p.namespacedKey(args.Key)).Result()
		if err == redis.Nil {
			return p.fail("read", call.ID, fmt.Sprintf("no value stored for %q", args.Key)), nil
		}
		if err != nil {
			return p.fail("read", call.ID, err.Error()), nil
		}
		p.ops.WithLabelValues("read", "ok").Inc()
		return &tools.ToolResult{CallID: call.ID, Output: val}, nil

	case "list":
		prefix := p.namespacedKey("")
		keys, err := p.client.Keys(ctx, prefix+"*").Result()
		if err != nil {
			return p.fail("list", call.ID, err.Error()), nil
		}
		bare := make([]string, 0, len(keys))
		for _, k := range keys {
			bare = append(bare, strings.TrimPrefix(k, prefix))
		}
		sort.Strings(bare)
		p.ops.WithLabelValues("list", "ok").Inc()
		return &tools.ToolResult{CallID: call.ID, Output: strings.Join(bare, "\n")}, nil

	default:
		return p.fail(args.Operation, call.ID, fmt.Sprintf("unsupported operation %q", args.Operation)), nil
	}
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
