package executor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/justinlietz93/toolstream/pkg/tools"
)

// fakeRegistry is a minimal tools.ToolExecutor for exercising the executor
// in isolation from the real builtin providers.
type fakeRegistry struct {
	known  map[string]bool
	invoke func(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error)
	calls  []tools.ToolCall
}

func (f *fakeRegistry) Kind() tools.ToolKind { return tools.ToolKindBuiltin }

func (f *fakeRegistry) CanExecute(name string) bool { return f.known[name] }

func (f *fakeRegistry) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	f.calls = append(f.calls, call)
	if f.invoke != nil {
		return f.invoke(ctx, call)
	}
	return &tools.ToolResult{CallID: call.ID, Output: "ok:" + call.Name}, nil
}

func newEchoRegistry(tool string) *fakeRegistry {
	return &fakeRegistry{known: map[string]bool{tool: true}}
}

func TestExecutor_ShellEchoSingleChunk(t *testing.T) {
	reg := newEchoRegistry("shell")
	reg.invoke = func(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
		var args struct {
			Command string `json:"command"`
		}
		json.Unmarshal([]byte(call.Arguments), &args)
		return &tools.ToolResult{CallID: call.ID, Output: "hi"}, nil
	}
	e := New(reg, nil)

	out := e.Feed(context.Background(), `TOOL_CALL: {"tool":"shell","input_schema":{"command":"echo hi"}}`+"\n")
	if !strings.Contains(out, "hi") {
		t.Fatalf("output = %q, want it to contain 'hi'", out)
	}

	hist := e.History()
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	if hist[0].ToolName != "shell" || hist[0].Status != "ok" {
		t.Errorf("history entry = %+v", hist[0])
	}
}

func TestExecutor_MarkerSplitAcrossChunkBoundary(t *testing.T) {
	reg := newEchoRegistry("shell")
	reg.invoke = func(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
		return &tools.ToolResult{CallID: call.ID, Output: "ok"}, nil
	}
	e := New(reg, nil)
	ctx := context.Background()

	out1 := e.Feed(ctx, "prefix TOOL_")
	out2 := e.Feed(ctx, `CALL: {"tool":"shell","input_schema":{"command":"echo ok"}} suffix`)

	full := out1 + out2
	if !strings.HasPrefix(full, "prefix ") {
		t.Fatalf("output %q does not start with 'prefix '", full)
	}
	if !strings.Contains(full, "ok") {
		t.Fatalf("output %q missing tool result", full)
	}
	if !strings.HasSuffix(full, " suffix") {
		t.Fatalf("output %q does not end with ' suffix'", full)
	}
}

func TestExecutor_MalformedObjectWaitsForClose(t *testing.T) {
	reg := newEchoRegistry("shell")
	e := New(reg, nil)
	ctx := context.Background()

	out := e.Feed(ctx, `TOOL_CALL: {"tool":"shell","input_schema":{`)
	if out != "" {
		t.Fatalf("expected no output before object closes, got %q", out)
	}
	if len(reg.calls) != 0 {
		t.Fatalf("tool should not have been invoked yet")
	}

	out = e.Feed(ctx, `"command":"pwd"}}`)
	if !strings.Contains(out, "ok:shell") {
		t.Fatalf("output = %q, want dispatched result", out)
	}
	if len(reg.calls) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(reg.calls))
	}
}

func TestExecutor_NonObjectInputSchemaIsBadShape(t *testing.T) {
	reg := newEchoRegistry("shell")
	e := New(reg, nil)

	// The object itself parses fine; only input_schema has the wrong type,
	// so this is a shape error, not a parse error.
	out := e.Feed(context.Background(), `TOOL_CALL: {"tool":"shell","input_schema":"oops"}`)
	if !strings.Contains(out, string(ErrBadShape)) {
		t.Fatalf("output = %q, want BAD_SHAPE annotation", out)
	}
	if strings.Contains(out, string(ErrParse)) {
		t.Fatalf("output = %q, must not be classified as PARSE_ERROR", out)
	}
	if len(reg.calls) != 0 {
		t.Fatalf("tool must not be invoked on a bad-shape call")
	}

	hist := e.History()
	if len(hist) != 1 || hist[0].Status != "fail" || hist[0].Kind != ErrBadShape {
		t.Fatalf("history = %+v", hist)
	}
}

func TestExecutor_MissingInputSchemaIsBadShape(t *testing.T) {
	reg := newEchoRegistry("shell")
	e := New(reg, nil)

	out := e.Feed(context.Background(), `TOOL_CALL: {"tool":"shell"}`)
	if !strings.Contains(out, string(ErrBadShape)) {
		t.Fatalf("output = %q, want BAD_SHAPE annotation", out)
	}
	if len(reg.calls) != 0 {
		t.Fatalf("tool must not be invoked without an input_schema")
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	reg := &fakeRegistry{known: map[string]bool{}}
	e := New(reg, nil)

	out := e.Feed(context.Background(), `TOOL_CALL: {"tool":"nope","input_schema":{}}`)
	if !strings.Contains(out, string(ErrUnknownTool)) {
		t.Fatalf("output = %q, want UNKNOWN_TOOL annotation", out)
	}

	hist := e.History()
	if len(hist) != 1 || hist[0].Status != "fail" || hist[0].Kind != ErrUnknownTool {
		t.Fatalf("history = %+v", hist)
	}
}

func TestExecutor_OrderingOfTwoCalls(t *testing.T) {
	reg := newEchoRegistry("shell")
	e := New(reg, nil)

	input := `before ` +
		`TOOL_CALL: {"tool":"shell","input_schema":{"command":"a"}}` +
		` middle ` +
		`TOOL_CALL: {"tool":"shell","input_schema":{"command":"b"}}` +
		` after`
	out := e.Feed(context.Background(), input)

	idxMiddle := strings.Index(out, "middle")
	idxOk := strings.Index(out, "ok:shell")
	if idxOk == -1 || idxMiddle == -1 || idxOk > idxMiddle {
		t.Fatalf("first result did not appear before 'middle' text: %q", out)
	}
	idxAfter := strings.Index(out, "after")
	secondOk := strings.LastIndex(out, "ok:shell")
	if idxAfter == -1 || secondOk > idxAfter {
		t.Fatalf("second result did not appear before 'after' text: %q", out)
	}
}

func TestExecutor_ChunkBoundaryIndependence(t *testing.T) {
	reg := newEchoRegistry("shell")
	full := `noise TOOL_CALL: {"tool":"shell","input_schema":{"command":"echo hi"}} tail`

	var calledWith []tools.ToolCall
	for splitAt := 0; splitAt <= len(full); splitAt++ {
		reg.invoke = func(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
			calledWith = append(calledWith, call)
			return &tools.ToolResult{CallID: call.ID, Output: "hi"}, nil
		}
		calledWith = nil
		e := New(reg, nil)
		ctx := context.Background()

		out := e.Feed(ctx, full[:splitAt]) + e.Feed(ctx, full[splitAt:])
		if !strings.Contains(out, "noise") || !strings.Contains(out, "tail") {
			t.Fatalf("split at %d: output missing surrounding text: %q", splitAt, out)
		}
		if len(calledWith) != 1 {
			t.Fatalf("split at %d: expected exactly one dispatch, got %d", splitAt, len(calledWith))
		}
		var args map[string]any
		json.Unmarshal([]byte(calledWith[0].Arguments), &args)
		if args["command"] != "echo hi" {
			t.Fatalf("split at %d: dispatched args = %v", splitAt, args)
		}
	}
}

func TestExecutor_ToolTimeout(t *testing.T) {
	reg := newEchoRegistry("slow")
	reg.invoke = func(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return &tools.ToolResult{CallID: call.ID, Output: "too late"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e := New(reg, nil, WithToolTimeout("slow", 10*time.Millisecond))

	out := e.Feed(context.Background(), `TOOL_CALL: {"tool":"slow","input_schema":{}}`)
	if !strings.Contains(out, string(ErrToolTimeout)) {
		t.Fatalf("output = %q, want TOOL_TIMEOUT annotation", out)
	}
}

func TestExecutor_ByteConservationWithoutMarker(t *testing.T) {
	reg := newEchoRegistry("shell")
	e := New(reg, nil)
	input := "just some plain prose with no tool calls at all."
	out := e.Feed(context.Background(), input)
	if out != input {
		t.Fatalf("output = %q, want unchanged input %q", out, input)
	}
}

func TestExecutor_ResetClearsHistoryAndBuffers(t *testing.T) {
	reg := newEchoRegistry("shell")
	e := New(reg, nil)
	ctx := context.Background()

	e.Feed(ctx, `TOOL_CALL: {"tool":"shell","input_schema":{"command":"echo hi"}}`)
	if len(e.History()) != 1 {
		t.Fatalf("expected one history entry before reset")
	}

	e.Feed(ctx, "TOOL_")
	e.Reset()

	if len(e.History()) != 0 {
		t.Fatalf("history not cleared after Reset()")
	}

	out := e.Feed(ctx, "CALL: should just be plain text now")
	if !strings.Contains(out, "CALL:") {
		t.Fatalf("residual marker prefix leaked across reset: %q", out)
	}
}

func TestExecutor_AllowedToolsRestriction(t *testing.T) {
	reg := newEchoRegistry("shell")
	e := New(reg, nil, WithAllowedTools([]string{"other_tool"}))

	out := e.Feed(context.Background(), `TOOL_CALL: {"tool":"shell","input_schema":{"command":"echo hi"}}`)
	if !strings.Contains(out, string(ErrUnknownTool)) {
		t.Fatalf("output = %q, want disallowed tool rejected as UNKNOWN_TOOL", out)
	}
}
