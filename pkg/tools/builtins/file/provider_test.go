package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/justinlietz93/toolstream/pkg/tools"
)

func call(operation, path, content string) tools.ToolCall {
	args := `{"operation":"` + operation + `","path":"` + path + `"`
	if content != "" {
		args += `,"content":"` + content + `"`
	}
	args += `}`
	return tools.ToolCall{ID: "call_1", Name: "file", Arguments: args}
}

func TestProvider_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Execute(context.Background(), call("write", "note.txt", "hello"))
	if err != nil || res.IsError {
		t.Fatalf("write failed: err=%v res=%+v", err, res)
	}

	res, err = p.Execute(context.Background(), call("read", "note.txt", ""))
	if err != nil || res.IsError {
		t.Fatalf("read failed: err=%v res=%+v", err, res)
	}
	if res.Output != "hello" {
		t.Fatalf("output = %q, want %q", res.Output, "hello")
	}
}

func TestProvider_RejectsPathEscapingSandbox(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Execute(context.Background(), call("read", "../outside.txt", ""))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected escaping path to be rejected, got %+v", res)
	}
}

func TestProvider_DeleteThenListDir(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("setup write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatalf("setup write: %v", err)
	}

	res, err := p.Execute(context.Background(), call("list_dir", ".", ""))
	if err != nil || res.IsError {
		t.Fatalf("list_dir failed: err=%v res=%+v", err, res)
	}
	if res.Output != "a.txt\nb.txt" {
		t.Fatalf("list_dir output = %q", res.Output)
	}

	res, err = p.Execute(context.Background(), call("delete", "a.txt", ""))
	if err != nil || res.IsError {
		t.Fatalf("delete failed: err=%v res=%+v", err, res)
	}

	res, err = p.Execute(context.Background(), call("list_dir", ".", ""))
	if err != nil || res.IsError {
		t.Fatalf("list_dir after delete failed: err=%v res=%+v", err, res)
	}
	if res.Output != "b.txt" {
		t.Fatalf("list_dir after delete = %q, want %q", res.Output, "b.txt")
	}
}

func TestProvider_NoSandboxUsesPathVerbatim(t *testing.T) {
	dir := t.TempDir()
	p, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	target := filepath.Join(dir, "raw.txt")
	res, err := p.Execute(context.Background(), call("write", target, "raw"))
	if err != nil || res.IsError {
		t.Fatalf("write failed: err=%v res=%+v", err, res)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "raw" {
		t.Fatalf("file contents = %q", data)
	}
}
