// Package inlinecall recognizes free-form function-style tool invocations
// embedded in model prose (e.g. shell("df -h")) and rewrites them in place
// as canonical TOOL_CALL: {...} structured calls, validated against each
// tool's JSON Schema before rewriting.
package inlinecall

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/justinlietz93/toolstream/pkg/debug"
	"github.com/justinlietz93/toolstream/pkg/observability"
	"github.com/justinlietz93/toolstream/pkg/toolschema"
)

// Marker is the literal prefix the executor looks for.
const Marker = "TOOL_CALL:"

// projection turns parsed inline-call arguments into a canonical tool name
// and input_schema map.
type projection struct {
	tool    string
	project func(args callArgs) (map[string]any, error)
}

// surface maps recognized free-form identifiers to their projection.
var surface = map[string]projection{
	"file_read": {
		tool: "file",
		project: func(a callArgs) (map[string]any, error) {
			path, err := a.requireString(0, "path")
			if err != nil {
				return nil, err
			}
			return map[string]any{"operation": "read", "path": path}, nil
		},
	},
	"file_write": {
		tool: "file",
		project: func(a callArgs) (map[string]any, error) {
			path, err := a.requireString(0, "path")
			if err != nil {
				return nil, err
			}
			content, err := a.requireString(1, "content")
			if err != nil {
				return nil, err
			}
			return map[string]any{"operation": "write", "path": path, "content": content}, nil
		},
	},
	"file_delete": {
		tool: "file",
		project: func(a callArgs) (map[string]any, error) {
			path, err := a.requireString(0, "path")
			if err != nil {
				return nil, err
			}
			return map[string]any{"operation": "delete", "path": path}, nil
		},
	},
	"shell": {
		tool: "shell",
		project: func(a callArgs) (map[string]any, error) {
			cmd, err := a.requireString(0, "cmd")
			if err != nil {
				return nil, err
			}
			return map[string]any{"command": cmd}, nil
		},
	},
	"code_runner": {
		tool: "code_runner",
		project: func(a callArgs) (map[string]any, error) {
			code, err := a.requireString(0, "code")
			if err != nil {
				return nil, err
			}
			language := a.optionalString("language", "python")
			return map[string]any{
				"files":     []any{map[string]any{"path": "main." + extensionFor(language), "content": code}},
				"main_file": "main." + extensionFor(language),
				"language":  language,
			}, nil
		},
	},
	"web_search": {
		tool: "web_search",
		project: func(a callArgs) (map[string]any, error) {
			q, err := a.requireString(0, "q")
			if err != nil {
				return nil, err
			}
			maxResults := 5
			if v := a.optionalString("max_results", ""); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					maxResults = n
				}
			}
			return map[string]any{"query": q, "max_results": maxResults}, nil
		},
	},
	"web_browser": {
		tool: "web_browser",
		project: func(a callArgs) (map[string]any, error) {
			url, err := a.requireString(0, "url")
			if err != nil {
				return nil, err
			}
			extractType := "text"
			if a.optionalString("extract_links", "false") == "true" {
				extractType = "links"
			}
			return map[string]any{"url": url, "extract_type": extractType}, nil
		},
	},
	"documentation_check": {
		tool: "documentation_check",
		project: func(a callArgs) (map[string]any, error) {
			path, err := a.requireString(0, "path")
			if err != nil {
				return nil, err
			}
			return map[string]any{"path": path}, nil
		},
	},
	"http_request": {
		tool: "http_request",
		project: func(a callArgs) (map[string]any, error) {
			method, err := a.requireString(0, "method")
			if err != nil {
				return nil, err
			}
			url, err := a.requireString(1, "url")
			if err != nil {
				return nil, err
			}
			return map[string]any{"method": method, "url": url}, nil
		},
	},
	"package_manager": {
		tool: "package_manager",
		project: func(a callArgs) (map[string]any, error) {
			action, err := a.requireString(0, "action")
			if err != nil {
				return nil, err
			}
			out := map[string]any{"action": action}
			if pkg := a.optionalString("package", ""); pkg != "" {
				out["package"] = pkg
			}
			return out, nil
		},
	},
	"write_memory": {
		tool: "memory",
		project: func(a callArgs) (map[string]any, error) {
			key, err := a.requireString(0, "key")
			if err != nil {
				return nil, err
			}
			value, err := a.requireString(1, "value")
			if err != nil {
				return nil, err
			}
			return map[string]any{"operation": "write", "key": key, "value": value}, nil
		},
	},
	"read_memory": {
		tool: "memory",
		project: func(a callArgs) (map[string]any, error) {
			key, err := a.requireString(0, "key")
			if err != nil {
				return nil, err
			}
			return map[string]any{"operation": "read", "key": key}, nil
		},
	},
	"list_memory": {
		tool: "memory",
		project: func(a callArgs) (map[string]any, error) {
			return map[string]any{"operation": "list"}, nil
		},
	},
}

func extensionFor(language string) string {
	switch language {
	case "go":
		return "go"
	case "javascript", "node":
		return "js"
	default:
		return "py"
	}
}

// Formatter recognizes inline calls in fed text and rewrites them to the
// canonical marker form. Unrecognized text passes through unchanged.
type Formatter struct {
	schemas *toolschema.Set
	buf     strings.Builder
}

// New creates a Formatter validating projected calls against schemas.
func New(schemas *toolschema.Set) *Formatter {
	return &Formatter{schemas: schemas}
}

// Feed processes one fragment, returning text with every fully-received
// inline call rewritten to TOOL_CALL: {...} form. An inline call whose
// closing parenthesis has not yet arrived is held back for the next Feed.
func (f *Formatter) Feed(fragment string) string {
	f.buf.WriteString(fragment)
	s := f.buf.String()

	var out strings.Builder
	i := 0
	for i < len(s) {
		start, nameEnd, ok := findCallStart(s, i)
		if !ok {
			out.WriteString(s[i:])
			i = len(s)
			break
		}
		out.WriteString(s[i:start])

		name := s[start:nameEnd]
		argsStart := nameEnd + 1 // skip '('
		argsEnd, closed := matchParen(s, argsStart)
		if !closed {
			// Incomplete call: retain from the call start for next Feed.
			f.buf.Reset()
			f.buf.WriteString(s[start:])
			return out.String()
		}

		rawArgs := s[argsStart:argsEnd]
		rewritten, handled := f.tryRewrite(name, rawArgs)
		if handled {
			out.WriteString(rewritten)
		} else {
			out.WriteString(s[start : argsEnd+1])
		}
		i = argsEnd + 1
	}

	f.buf.Reset()
	return out.String()
}

// Reset discards any residual buffered text (an in-progress, not-yet-closed
// inline call). Call this when a stream is cancelled.
func (f *Formatter) Reset() {
	f.buf.Reset()
}

// tryRewrite projects and validates a recognized call, returning the
// canonical marker text. handled is false for unrecognized names, in which
// case the caller should pass the original text through untouched.
func (f *Formatter) tryRewrite(name, rawArgs string) (string, bool) {
	proj, ok := surface[name]
	if !ok {
		return "", false
	}

	args, err := parseArgs(rawArgs)
	if err != nil {
		observability.RecordFormatterRewrite("parse_error")
		return fmt.Sprintf("%s(%s) [VALIDATION ERROR: %v]", name, rawArgs, err), true
	}

	fields, err := proj.project(args)
	if err != nil {
		observability.RecordFormatterRewrite("validation_error")
		return fmt.Sprintf("%s(%s) [VALIDATION ERROR: %v]", name, rawArgs, err), true
	}

	if f.schemas != nil {
		if err := f.schemas.Validate(proj.tool, fields); err != nil {
			observability.RecordFormatterRewrite("validation_error")
			return fmt.Sprintf("%s(%s) [VALIDATION ERROR: %v]", name, rawArgs, err), true
		}
	}

	payload := map[string]any{"tool": proj.tool, "input_schema": fields}
	body, err := json.Marshal(payload)
	if err != nil {
		observability.RecordFormatterRewrite("parse_error")
		return fmt.Sprintf("%s(%s) [VALIDATION ERROR: %v]", name, rawArgs, err), true
	}

	observability.RecordFormatterRewrite("ok")
	debug.Log("formatter", "rewrote inline call", "surface", name, "tool", proj.tool)
	return Marker + " " + string(body), true
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// findCallStart locates the next identifier-immediately-followed-by-'(' in
// s starting from offset, returning the identifier's start and end offsets.
func findCallStart(s string, from int) (start, nameEnd int, ok bool) {
	i := from
	for i < len(s) {
		if isIdentStart(s[i]) {
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			if j < len(s) && s[j] == '(' {
				return i, j, true
			}
			i = j
			continue
		}
		i++
	}
	return 0, 0, false
}

// matchParen finds the index of the ')' matching the '(' that precedes
// argsStart, honoring nested parens and quoted strings. Returns closed=false
// if the buffer ends before the match is found.
func matchParen(s string, argsStart int) (end int, closed bool) {
	depth := 1
	inString := false
	var quote byte
	escaped := false

	for i := argsStart; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				inString = false
			}
			continue
		}
		switch ch {
		case '\'', '"':
			inString = true
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
