// Package llm provides the chat-completion client used by the agent.
package llm

// Message represents a role-tagged chat message.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall is a tool invocation requested by the model. Arguments is
// the decoded payload; ArgsJSON preserves the raw serialized form so
// the dispatcher can distinguish "no arguments" from "arguments that
// failed to parse".
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	ArgsJSON  string         `json:"args_json,omitempty"`
}

// Malformed reports whether the call carried an argument payload that
// could not be decoded.
func (tc ToolCall) Malformed() bool {
	return tc.Arguments == nil && tc.ArgsJSON != "" && tc.ArgsJSON != "{}" && tc.ArgsJSON != "null"
}

// ChatResponse is the provider-neutral completion result. Wire format
// conversion happens at the provider boundary (kimi.go).
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string

	// Token usage (when reported)
	InputTokens  int
	OutputTokens int
}

// ChatOptions carries per-request knobs.
type ChatOptions struct {
	// Tools is the tool schema list offered to the model. Nil means the
	// model must answer in text.
	Tools []map[string]any

	// Temperature selects deterministic (0.0) vs. creative sampling.
	Temperature float64
}
