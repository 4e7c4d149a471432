// Package executor implements the real-time structured-call parser: a
// streaming state machine that locates the TOOL_CALL: marker, accumulates
// the following JSON object across arbitrary chunk boundaries, dispatches
// the call to a tool registry, and splices the result back into the output
// stream in order.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/debug"
	"github.com/justinlietz93/toolstream/pkg/observability"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/toolschema"
)

// Marker is the literal string that introduces a structured call.
const Marker = "TOOL_CALL:"

// ErrorKind names one of the recoverable failure modes a dispatch can hit.
type ErrorKind string

const (
	ErrParse        ErrorKind = "PARSE_ERROR"
	ErrUnknownTool  ErrorKind = "UNKNOWN_TOOL"
	ErrBadShape     ErrorKind = "BAD_SHAPE"
	ErrToolFailure  ErrorKind = "TOOL_FAILURE"
	ErrToolTimeout  ErrorKind = "TOOL_TIMEOUT"
)

// HistoryEntry records one completed or failed dispatch.
type HistoryEntry struct {
	Timestamp   time.Time
	ToolName    string
	InputFields map[string]any
	Result      string
	Kind        ErrorKind // empty when Status == "ok"
	Status      string    // "ok" or "fail"
}

// Archiver mirrors completed history entries to a durable store, best
// effort, after they have already been appended to the in-memory history.
// It must not block the executor for long; callers typically implement this
// with a buffered async writer (see pkg/storage/postgres).
type Archiver interface {
	Archive(streamID string, entry HistoryEntry)
}

type scanState int

const (
	stateScan scanState = iota
	stateAwaitObject
	stateInObject
)

// Executor drives one stream's structured-call dispatch.
type Executor struct {
	StreamID       string
	registry       tools.ToolExecutor
	schemas        *toolschema.Set
	defaultTimeout time.Duration
	toolTimeouts   map[string]time.Duration
	allowedTools   []string
	archiver       Archiver

	state      scanState
	buf        strings.Builder
	objBuf     strings.Builder
	braceDepth int
	inString   bool
	escaped    bool

	mu      sync.Mutex
	history []HistoryEntry
}

// Option configures an Executor.
type Option func(*Executor)

// WithStreamID labels metrics/history with a stream identifier.
func WithStreamID(id string) Option {
	return func(e *Executor) { e.StreamID = id }
}

// WithDefaultTimeout overrides the default per-tool invocation timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) { e.defaultTimeout = d }
}

// WithToolTimeout overrides the timeout for one named tool.
func WithToolTimeout(tool string, d time.Duration) Option {
	return func(e *Executor) {
		if e.toolTimeouts == nil {
			e.toolTimeouts = make(map[string]time.Duration)
		}
		e.toolTimeouts[tool] = d
	}
}

// WithAllowedTools restricts dispatch to the named tools; calls to any other
// tool are rejected as UNKNOWN_TOOL. Nil/empty means all tools are allowed.
func WithAllowedTools(names []string) Option {
	return func(e *Executor) { e.allowedTools = names }
}

// WithArchiver attaches a best-effort durable history mirror.
func WithArchiver(a Archiver) Option {
	return func(e *Executor) { e.archiver = a }
}

// New creates an Executor dispatching through registry, validating
// input_schema against schemas (may be nil to skip schema validation).
func New(registry tools.ToolExecutor, schemas *toolschema.Set, opts ...Option) *Executor {
	e := &Executor{
		registry:       registry,
		schemas:        schemas,
		defaultTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Feed processes fed text, returning it with every fully-received
// TOOL_CALL: {...} span replaced by the dispatched tool's output, wrapped in
// a leading and trailing newline. Pre- and post-call text passes through
// unchanged and in order.
func (e *Executor) Feed(ctx context.Context, text string) string {
	e.buf.WriteString(text)

	var out strings.Builder
	for {
		switch e.state {
		case stateScan:
			if !e.scanStep(&out) {
				return out.String()
			}
		case stateAwaitObject:
			if !e.awaitObjectStep(&out) {
				return out.String()
			}
		case stateInObject:
			if ctx.Err() != nil {
				return out.String()
			}
			if !e.inObjectStep(ctx, &out) {
				return out.String()
			}
		}
	}
}

// scanStep looks for the marker in the residual buffer. Returns false when
// it has consumed all available input without finding a full marker (the
// caller should return control to the provider).
func (e *Executor) scanStep(out *strings.Builder) bool {
	s := e.buf.String()
	if idx := strings.Index(s, Marker); idx >= 0 {
		out.WriteString(s[:idx])
		e.buf.Reset()
		e.buf.WriteString(s[idx+len(Marker):])
		e.state = stateAwaitObject
		return true
	}

	keep := partialMarkerSuffixLen(s)
	out.WriteString(s[:len(s)-keep])
	e.buf.Reset()
	e.buf.WriteString(s[len(s)-keep:])
	return false
}

// awaitObjectStep skips whitespace after the marker and transitions into
// object accumulation once '{' is seen. If the buffer ends first, it stays
// in AWAIT_OBJECT and waits for more input; if a non-'{' character follows
// the whitespace, it reports a parse error and returns to scanning.
func (e *Executor) awaitObjectStep(out *strings.Builder) bool {
	s := e.buf.String()
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i >= len(s) {
		e.buf.Reset()
		return false
	}
	if s[i] != '{' {
		out.WriteString(annotate(ErrParse, "expected '{' after "+Marker))
		observability.RecordExecutorDispatch("unknown", string(ErrParse), 0)
		e.recordFailure("", nil, ErrParse, "expected '{' after "+Marker)
		e.buf.Reset()
		e.buf.WriteString(s[i:])
		e.state = stateScan
		return true
	}

	e.objBuf.Reset()
	e.braceDepth = 0
	e.inString = false
	e.escaped = false
	e.buf.Reset()
	e.buf.WriteString(s[i:])
	e.state = stateInObject
	return true
}

// inObjectStep accumulates characters into objBuf, tracking brace depth and
// string-escape state, and dispatches once the object closes.
func (e *Executor) inObjectStep(ctx context.Context, out *strings.Builder) bool {
	s := e.buf.String()
	consumed := 0
	done := false

	for ; consumed < len(s); consumed++ {
		ch := s[consumed]
		e.objBuf.WriteByte(ch)

		if e.inString {
			switch {
			case e.escaped:
				e.escaped = false
			case ch == '\\':
				e.escaped = true
			case ch == '"':
				e.inString = false
			}
			continue
		}

		switch ch {
		case '"':
			e.inString = true
		case '{':
			e.braceDepth++
		case '}':
			e.braceDepth--
			if e.braceDepth == 0 {
				done = true
			}
		}
		if done {
			consumed++
			break
		}
	}

	rest := s[consumed:]
	e.buf.Reset()
	e.buf.WriteString(rest)

	if !done {
		return false
	}

	objText := e.objBuf.String()
	e.objBuf.Reset()
	result := e.dispatch(ctx, objText)
	out.WriteString("\n" + result + "\n")
	e.state = stateScan
	return true
}

// Reset clears all residual buffers, state, and history. Call this at the
// start of a new LLM turn so state never leaks across turns.
func (e *Executor) Reset() {
	e.state = stateScan
	e.buf.Reset()
	e.objBuf.Reset()
	e.braceDepth = 0
	e.inString = false
	e.escaped = false

	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
}

// History returns a snapshot of the call history accumulated so far.
func (e *Executor) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Executor) appendHistory(entry HistoryEntry) {
	e.mu.Lock()
	e.history = append(e.history, entry)
	e.mu.Unlock()
	if e.archiver != nil && entry.Status != "in_progress" {
		go e.archiver.Archive(e.StreamID, entry)
	}
}

type structuredCall struct {
	Tool string `json:"tool"`

	// InputSchema stays raw through the first decode so a well-formed
	// object carrying a non-object input_schema is a shape error, not a
	// parse error.
	InputSchema json.RawMessage `json:"input_schema"`
}

// dispatch parses, validates, and executes one structured call, returning
// the text to splice in (either the tool's content or an annotated error).
func (e *Executor) dispatch(ctx context.Context, objText string) string {
	var call structuredCall
	if err := json.Unmarshal([]byte(objText), &call); err != nil {
		e.recordFailure("", nil, ErrParse, err.Error())
		return annotate(ErrParse, err.Error())
	}
	if call.Tool == "" {
		e.recordFailure("", nil, ErrBadShape, "missing 'tool' field")
		return annotate(ErrBadShape, "missing 'tool' field")
	}

	fields, err := decodeInputSchema(call.InputSchema)
	if err != nil {
		e.recordFailure(call.Tool, nil, ErrBadShape, err.Error())
		return annotate(ErrBadShape, err.Error())
	}

	if !tools.IsAllowed(call.Tool, e.allowedTools) || !e.registry.CanExecute(call.Tool) {
		e.recordFailure(call.Tool, fields, ErrUnknownTool, call.Tool)
		return annotate(ErrUnknownTool, call.Tool)
	}

	if e.schemas != nil {
		if err := e.schemas.Validate(call.Tool, fields); err != nil {
			e.recordFailure(call.Tool, fields, ErrBadShape, err.Error())
			return annotate(ErrBadShape, err.Error())
		}
	}

	argsJSON, err := json.Marshal(fields)
	if err != nil {
		e.recordFailure(call.Tool, fields, ErrBadShape, err.Error())
		return annotate(ErrBadShape, err.Error())
	}

	timeout := e.defaultTimeout
	if d, ok := e.toolTimeouts[call.Tool]; ok {
		timeout = d
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	debug.Log("executor", "dispatching structured call",
		"tool", call.Tool, "timeout", timeout, "stream", e.StreamID)

	start := time.Now()
	result, err := e.registry.Execute(callCtx, tools.ToolCall{
		ID:        api.NewCallID(),
		Name:      call.Tool,
		Arguments: string(argsJSON),
	})
	elapsed := time.Since(start).Seconds()

	if callCtx.Err() != nil {
		e.recordFailure(call.Tool, fields, ErrToolTimeout, "tool invocation timed out")
		observability.RecordExecutorDispatch(call.Tool, string(ErrToolTimeout), elapsed)
		return annotate(ErrToolTimeout, call.Tool)
	}
	if err != nil {
		e.recordFailure(call.Tool, fields, ErrToolFailure, err.Error())
		observability.RecordExecutorDispatch(call.Tool, string(ErrToolFailure), elapsed)
		return annotate(ErrToolFailure, err.Error())
	}
	if result == nil {
		e.recordFailure(call.Tool, fields, ErrToolFailure, "tool returned no result")
		observability.RecordExecutorDispatch(call.Tool, string(ErrToolFailure), elapsed)
		return annotate(ErrToolFailure, "tool returned no result")
	}
	if result.IsError {
		e.recordFailure(call.Tool, fields, ErrToolFailure, result.Output)
		observability.RecordExecutorDispatch(call.Tool, string(ErrToolFailure), elapsed)
		return annotate(ErrToolFailure, result.Output)
	}

	e.appendHistory(HistoryEntry{
		Timestamp:   time.Now(),
		ToolName:    call.Tool,
		InputFields: fields,
		Result:      result.Output,
		Status:      "ok",
	})
	observability.RecordExecutorDispatch(call.Tool, "ok", elapsed)
	return result.Output
}

func (e *Executor) recordFailure(tool string, fields map[string]any, kind ErrorKind, msg string) {
	e.appendHistory(HistoryEntry{
		Timestamp:   time.Now(),
		ToolName:    tool,
		InputFields: fields,
		Result:      msg,
		Kind:        kind,
		Status:      "fail",
	})
}

// decodeInputSchema turns a raw input_schema value into a field map. The
// field is required and must be a JSON object; anything else is rejected so
// the caller can report BAD_SHAPE.
func decodeInputSchema(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("missing 'input_schema' field")
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("'input_schema' must be an object")
	}
	fields := map[string]any{}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("'input_schema' must be an object: %v", err)
	}
	return fields, nil
}

func annotate(kind ErrorKind, detail string) string {
	return fmt.Sprintf("[TOOL ERROR: %s %s]", kind, detail)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// partialMarkerSuffixLen returns the length of the longest suffix of s that
// is also a strict prefix of Marker, so a marker split across a chunk
// boundary is never silently emitted as plain text.
func partialMarkerSuffixLen(s string) int {
	max := len(Marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, Marker[:n]) {
			return n
		}
	}
	return 0
}
