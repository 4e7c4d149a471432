// Package codeinterpreter provides the code_runner FunctionProvider, which
// materializes a set of source files in an isolated sandbox pod and runs
// the entry file via the sandbox server REST API.
package codeinterpreter

// SandboxRequest is the request body for POST /execute on the sandbox server.
type SandboxRequest struct {
	Files          map[string]string `json:"files"`
	MainFile       string            `json:"main_file"`
	Language       string            `json:"language,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Requirements   []string          `json:"requirements,omitempty"`
}

// SandboxResponse is the response from POST /execute on the sandbox server.
type SandboxResponse struct {
	Status          string            `json:"status"`
	Stdout          string            `json:"stdout"`
	Stderr          string            `json:"stderr"`
	ExitCode        int               `json:"exit_code"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	FilesProduced   map[string]string `json:"files_produced,omitempty"`
}
