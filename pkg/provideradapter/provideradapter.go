// Package provideradapter defines the narrow contract an LLM provider
// adapter uses to drive the tool-call streaming pipeline, and the
// per-stream Pipeline that wires the chunker, inline-call formatter,
// structured-call executor, and typed-lag smoother together.
//
// The dependency direction is one-way: a provider adapter only ever sees
// a read-only ToolLister view of the registry, and tools never reference
// the adapter.
package provideradapter

import (
	"context"
	"time"

	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/stream/chunker"
	"github.com/justinlietz93/toolstream/pkg/stream/executor"
	"github.com/justinlietz93/toolstream/pkg/stream/inlinecall"
	"github.com/justinlietz93/toolstream/pkg/stream/smoother"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/toolschema"
)

// ToolLister is the read-only view of the tool registry a provider adapter
// is allowed to see — just enough to advertise available tools to the
// model, never enough to execute one directly.
type ToolLister interface {
	DiscoveredTools() []api.ToolDefinition
}

// Producer is what an LLM provider implements to feed chunks into a
// pipeline: a channel of raw text chunks as they arrive from the backend,
// closed when the model's turn ends (normally or on error).
type Producer interface {
	// Chunks returns the channel of incremental text chunks for one turn.
	// The channel is closed when the turn ends.
	Chunks(ctx context.Context) <-chan string
}

// Pipeline wires one stream's SafeChunker, Formatter, Executor, and
// Smoother together. The data flow is push-based: a provider adapter
// calls Feed per chunk; Feed drives the chunker, then
// the formatter, then the executor, and returns a rune channel of
// human-paced output.
type Pipeline struct {
	StreamID string

	chunker   *chunker.SafeChunker
	formatter *inlinecall.Formatter
	executor  *executor.Executor
	smoother  *smoother.Smoother
}

// Config configures a new Pipeline's components.
type Config struct {
	StreamID string

	ChunkerIdleFlush time.Duration
	ChunkerClock     chunker.Clock

	DefaultToolTimeout time.Duration
	ToolTimeouts       map[string]time.Duration
	AllowedTools       []string
	Archiver           executor.Archiver

	SmootherInitialDelay time.Duration
	SmootherZeroDelayQ   int
}

// New constructs a Pipeline dispatching tool calls through registry and
// validating input_schema against schemas.
func New(registry tools.ToolExecutor, schemas *toolschema.Set, cfg Config) *Pipeline {
	var chunkerOpts []chunker.Option
	if cfg.ChunkerIdleFlush > 0 {
		chunkerOpts = append(chunkerOpts, chunker.WithIdleFlush(cfg.ChunkerIdleFlush))
	}
	if cfg.ChunkerClock != nil {
		chunkerOpts = append(chunkerOpts, chunker.WithClock(cfg.ChunkerClock))
	}
	if cfg.StreamID != "" {
		chunkerOpts = append(chunkerOpts, chunker.WithStreamID(cfg.StreamID))
	}

	var execOpts []executor.Option
	if cfg.StreamID != "" {
		execOpts = append(execOpts, executor.WithStreamID(cfg.StreamID))
	}
	if cfg.DefaultToolTimeout > 0 {
		execOpts = append(execOpts, executor.WithDefaultTimeout(cfg.DefaultToolTimeout))
	}
	for tool, d := range cfg.ToolTimeouts {
		execOpts = append(execOpts, executor.WithToolTimeout(tool, d))
	}
	if len(cfg.AllowedTools) > 0 {
		execOpts = append(execOpts, executor.WithAllowedTools(cfg.AllowedTools))
	}
	if cfg.Archiver != nil {
		execOpts = append(execOpts, executor.WithArchiver(cfg.Archiver))
	}

	var smootherOpts []smoother.Option
	if cfg.SmootherInitialDelay > 0 {
		smootherOpts = append(smootherOpts, smoother.WithInitialDelay(cfg.SmootherInitialDelay))
	}
	if cfg.SmootherZeroDelayQ > 0 {
		smootherOpts = append(smootherOpts, smoother.WithZeroDelayQueue(cfg.SmootherZeroDelayQ))
	}
	if cfg.StreamID != "" {
		smootherOpts = append(smootherOpts, smoother.WithStreamID(cfg.StreamID))
	}

	return &Pipeline{
		StreamID:  cfg.StreamID,
		chunker:   chunker.New(chunkerOpts...),
		formatter: inlinecall.New(schemas),
		executor:  executor.New(registry, schemas, execOpts...),
		smoother:  smoother.New(smootherOpts...),
	}
}

// Feed pushes one chunk through the chunker, formatter, and executor, and
// returns the resulting text paced through the typed-lag smoother as a rune
// channel. The channel closes once the resulting text is exhausted or ctx
// is cancelled.
func (p *Pipeline) Feed(ctx context.Context, chunk string) <-chan rune {
	var out string
	for _, frag := range p.chunker.Process(chunk) {
		out += p.executor.Feed(ctx, p.formatter.Feed(frag))
	}
	return p.smoother.Smooth(ctx, out)
}

// End is called once at stream end: it flushes any residual chunker
// buffer through the formatter and executor, returning the final paced
// rune channel, and then resets the executor so the next turn starts
// clean. The caller must drain the returned channel before starting a new
// turn on this Pipeline.
func (p *Pipeline) End(ctx context.Context) <-chan rune {
	var out string
	if frag, ok := p.chunker.Flush(); ok {
		out = p.executor.Feed(ctx, p.formatter.Feed(frag))
	}
	ch := p.smoother.Smooth(ctx, out)
	return p.drainThenReset(ch)
}

// drainThenReset wraps ch so the executor resets only after every rune has
// been consumed by the caller, preserving the contract that History() still
// reflects the turn just ended until the channel closes.
func (p *Pipeline) drainThenReset(ch <-chan rune) <-chan rune {
	out := make(chan rune)
	go func() {
		defer close(out)
		defer p.executor.Reset()
		for r := range ch {
			out <- r
		}
	}()
	return out
}

// Cancel discards residual buffers without flushing. A cancelled stream
// never surfaces its pending fragments.
func (p *Pipeline) Cancel() {
	p.chunker.Reset()
	p.formatter.Reset()
	p.executor.Reset()
}

// History returns the call-history entries recorded by this stream so far.
func (p *Pipeline) History() []executor.HistoryEntry {
	return p.executor.History()
}
