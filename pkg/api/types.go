package api

import "encoding/json"

// ToolDefinition describes a tool available to the model, shared by every
// registry.FunctionProvider and the MCP bridge so the streaming pipeline can
// advertise and validate against a single shape regardless of where a tool
// came from.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict"`
}

// CodeRunData holds the data specific to a code_runner invocation: the
// entry file that was executed and the outputs the run produced.
type CodeRunData struct {
	MainFile string          `json:"main_file"`
	Outputs  []CodeRunOutput `json:"outputs"`
}

// CodeRunOutput represents a single output from code execution,
// either a logs chunk or a reference to a generated image.
type CodeRunOutput struct {
	Type  string        `json:"type"` // "logs" or "image"
	Logs  string        `json:"logs,omitempty"`
	Image *CodeRunImage `json:"image,omitempty"`
}

// CodeRunImage holds a file reference for an image output.
type CodeRunImage struct {
	FileID string `json:"file_id"`
	URL    string `json:"url,omitempty"`
}
