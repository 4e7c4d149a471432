// Package api defines the small set of shared wire types that cross package
// boundaries in the tool-call streaming pipeline: the [ToolDefinition] every
// registry.FunctionProvider and the MCP bridge advertise tools with, the
// code-runner call/output shapes pkg/tools/builtins/codeinterpreter
// emits, and the call-ID generator pkg/stream/executor stamps onto each
// dispatched call.
//
// The package has zero external dependencies (Go standard library only) and
// performs no I/O.
package api
