// Package toolschema compiles and validates the JSON Schema associated
// with each registry tool's input_schema shape. It holds its own JSON
// Schema document for each builtin tool (builtinSchemas, separate from the
// provider definitions in pkg/tools/builtins), accepts further documents
// through Register, compiles each once, and checks every dispatched field
// map against them before a tool invoker ever sees it.
package toolschema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Set is a compiled collection of per-tool JSON Schemas.
type Set struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSet compiles the builtin tool schemas. Call Register to add more
// (e.g. MCP-discovered tool schemas) after construction.
func NewSet() (*Set, error) {
	s := &Set{schemas: make(map[string]*jsonschema.Schema)}
	for name, raw := range builtinSchemas {
		if err := s.Register(name, raw); err != nil {
			return nil, fmt.Errorf("compiling schema for %q: %w", name, err)
		}
	}
	return s, nil
}

// Register compiles and adds a schema for toolName from its raw JSON Schema
// document.
func (s *Set) Register(toolName string, rawSchema json.RawMessage) error {
	c := jsonschema.NewCompiler()
	res, err := jsonschema.UnmarshalJSON(strings.NewReader(string(rawSchema)))
	if err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	resourceName := toolName + ".json"
	if err := c.AddResource(resourceName, res); err != nil {
		return fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[toolName] = compiled
	return nil
}

// Validate checks fields against toolName's compiled schema. A tool with no
// registered schema is considered unconstrained and always validates.
func (s *Set) Validate(toolName string, fields map[string]any) error {
	s.mu.RLock()
	sch, ok := s.schemas[toolName]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	// jsonschema/v6 validates decoded JSON values; round-trip through JSON
	// so Go map/slice values take the shapes the library expects (e.g. all
	// numbers as float64).
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("decoding fields: %w", err)
	}

	if err := sch.Validate(instance); err != nil {
		return err
	}
	return nil
}

// builtinSchemas holds the JSON Schema document for each builtin tool's
// input_schema shape.
var builtinSchemas = map[string]json.RawMessage{
	"file": json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["read", "write", "delete", "list_dir"]},
			"path": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["operation", "path"]
	}`),
	"shell": json.RawMessage(`{
		"type": "object",
		"properties": {"command": {"type": "string"}},
		"required": ["command"]
	}`),
	"code_runner": json.RawMessage(`{
		"type": "object",
		"properties": {
			"files": {"type": "array"},
			"main_file": {"type": "string"},
			"language": {"type": "string"}
		},
		"required": ["files", "main_file"]
	}`),
	"web_search": json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"max_results": {"type": "integer"}
		},
		"required": ["query"]
	}`),
	"web_browser": json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string"},
			"extract_type": {"type": "string", "enum": ["text", "links"]}
		},
		"required": ["url"]
	}`),
	"documentation_check": json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"required": ["path"]
	}`),
	"http_request": json.RawMessage(`{
		"type": "object",
		"properties": {
			"method": {"type": "string"},
			"url": {"type": "string"}
		},
		"required": ["method", "url"]
	}`),
	"package_manager": json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["install", "remove", "list"]},
			"package": {"type": "string"}
		},
		"required": ["action"]
	}`),
	"memory": json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["write", "read", "list"]},
			"key": {"type": "string"},
			"value": {"type": "string"}
		},
		"required": ["operation"]
	}`),
}
