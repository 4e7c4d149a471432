package shell

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/justinlietz93/toolstream/pkg/tools"
)

func TestProvider_EchoSucceeds(t *testing.T) {
	p := New(5*time.Second, nil)
	res, err := p.Execute(context.Background(), tools.ToolCall{ID: "c1", Name: "shell", Arguments: `{"command":"echo hi"}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if !strings.Contains(res.Output, "hi") {
		t.Fatalf("output = %q, want it to contain 'hi'", res.Output)
	}
}

func TestProvider_TimeoutReportedAsError(t *testing.T) {
	p := New(20*time.Millisecond, nil)
	res, err := p.Execute(context.Background(), tools.ToolCall{ID: "c1", Name: "shell", Arguments: `{"command":"sleep 1"}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Output, "timed out") {
		t.Fatalf("res = %+v, want timeout error", res)
	}
}

func TestProvider_DisallowedCommandRejected(t *testing.T) {
	p := New(5*time.Second, []string{"echo"})
	res, err := p.Execute(context.Background(), tools.ToolCall{ID: "c1", Name: "shell", Arguments: `{"command":"rm -rf /tmp/x"}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected disallowed command to be rejected, got %+v", res)
	}
}

func TestProvider_MissingCommandRejected(t *testing.T) {
	p := New(5*time.Second, nil)
	res, err := p.Execute(context.Background(), tools.ToolCall{ID: "c1", Name: "shell", Arguments: `{}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected missing command to be rejected, got %+v", res)
	}
}
