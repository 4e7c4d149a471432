package tools

// FilterResult holds the outcome of filtering tool calls against allowed_tools.
type FilterResult struct {
	// Allowed contains tool calls that passed the filter.
	Allowed []ToolCall

	// Rejected contains tool calls that were not in the allowed list,
	// paired with error results to feed back to the model.
	Rejected []ToolResult
}

// IsAllowed reports whether name passes the allowed-tools filter. An empty
// or nil allowedTools list allows everything.
func IsAllowed(name string, allowedTools []string) bool {
	if len(allowedTools) == 0 {
		return true
	}
	for _, allowed := range allowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// FilterAllowedTools checks each tool call against the allowed list.
// If allowedTools is empty or nil, all tool calls are allowed.
// Returns a FilterResult with allowed and rejected tool calls.
func FilterAllowedTools(calls []ToolCall, allowedTools []string) FilterResult {
	// No filter: all allowed.
	if len(allowedTools) == 0 {
		return FilterResult{Allowed: calls}
	}

	var result FilterResult
	for _, call := range calls {
		if IsAllowed(call.Name, allowedTools) {
			result.Allowed = append(result.Allowed, call)
		} else {
			result.Rejected = append(result.Rejected, ToolResult{
				CallID:  call.ID,
				Output:  "tool " + call.Name + " is not in the allowed_tools list",
				IsError: true,
			})
		}
	}

	return result
}
