package memory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/justinlietz93/toolstream/pkg/tools"
)

func newTestProvider(t *testing.T, streamID string) *Provider {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, streamID)
}

func TestProvider_WriteThenRead(t *testing.T) {
	p := newTestProvider(t, "stream-a")
	ctx := context.Background()

	res, err := p.Execute(ctx, tools.ToolCall{ID: "c1", Name: "memory", Arguments: `{"operation":"write","key":"foo","value":"bar"}`})
	if err != nil || res.IsError {
		t.Fatalf("write failed: err=%v res=%+v", err, res)
	}

	res, err = p.Execute(ctx, tools.ToolCall{ID: "c2", Name: "memory", Arguments: `{"operation":"read","key":"foo"}`})
	if err != nil || res.IsError {
		t.Fatalf("read failed: err=%v res=%+v", err, res)
	}
	if res.Output != "bar" {
		t.Fatalf("output = %q, want %q", res.Output, "bar")
	}
}

func TestProvider_ReadMissingKeyIsError(t *testing.T) {
	p := newTestProvider(t, "stream-a")
	res, err := p.Execute(context.Background(), tools.ToolCall{ID: "c1", Name: "memory", Arguments: `{"operation":"read","key":"nope"}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected missing key to be an error, got %+v", res)
	}
}

func TestProvider_ListReturnsOnlyOwnStreamKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pa := New(client, "stream-a")
	pb := New(client, "stream-b")
	ctx := context.Background()

	pa.Execute(ctx, tools.ToolCall{ID: "c1", Name: "memory", Arguments: `{"operation":"write","key":"k1","value":"v1"}`})
	pa.Execute(ctx, tools.ToolCall{ID: "c2", Name: "memory", Arguments: `{"operation":"write","key":"k2","value":"v2"}`})
	pb.Execute(ctx, tools.ToolCall{ID: "c3", Name: "memory", Arguments: `{"operation":"write","key":"k3","value":"v3"}`})

	res, err := pa.Execute(ctx, tools.ToolCall{ID: "c4", Name: "memory", Arguments: `{"operation":"list"}`})
	if err != nil || res.IsError {
		t.Fatalf("list failed: err=%v res=%+v", err, res)
	}
	if res.Output != "k1\nk2" {
		t.Fatalf("list output = %q, want %q", res.Output, "k1\nk2")
	}
}
