// Package multiexec merges several tools.ToolExecutor implementations into
// one: the first executor whose CanExecute matches wins. A Pipeline wants a
// single tools.ToolExecutor it can hand to executor.New; this type is that
// adapter, letting builtin and MCP executors sit behind one dispatch point.
package multiexec

import (
	"context"
	"fmt"

	"github.com/justinlietz93/toolstream/pkg/tools"
)

// Executor tries each wrapped executor in order and dispatches to the
// first one whose CanExecute reports true.
type Executor struct {
	executors []tools.ToolExecutor
}

var _ tools.ToolExecutor = (*Executor)(nil)

// New merges executors in priority order: earlier entries win on a tool
// name collision. Nil executors are skipped so callers can pass an
// optional MCP executor unconditionally.
func New(executors ...tools.ToolExecutor) *Executor {
	e := &Executor{}
	for _, ex := range executors {
		if ex != nil {
			e.executors = append(e.executors, ex)
		}
	}
	return e
}

// Kind reports ToolKindBuiltin. The merged executor has no single kind of
// its own; Builtin is what callers treating it as one opaque backend expect.
func (e *Executor) Kind() tools.ToolKind { return tools.ToolKindBuiltin }

// CanExecute reports whether any wrapped executor handles toolName.
func (e *Executor) CanExecute(toolName string) bool {
	return e.find(toolName) != nil
}

// Execute dispatches to the first wrapped executor that can handle the
// call, or returns an error result if none can.
func (e *Executor) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	if ex := e.find(call.Name); ex != nil {
		return ex.Execute(ctx, call)
	}
	return &tools.ToolResult{
		CallID:  call.ID,
		Output:  fmt.Sprintf("no executor handles tool %q", call.Name),
		IsError: true,
	}, nil
}

func (e *Executor) find(toolName string) tools.ToolExecutor {
	for _, ex := range e.executors {
		if ex.CanExecute(toolName) {
			return ex
		}
	}
	return nil
}

// Close closes every wrapped executor that has resources to release,
// returning the last error seen.
func (e *Executor) Close() error {
	var lastErr error
	for _, ex := range e.executors {
		if closer, ok := ex.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}
