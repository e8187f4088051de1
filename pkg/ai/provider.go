package ai

import "context"

// Message represents a single role-tagged turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant turns that requested tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID and ToolName are set on "tool" turns carrying a tool result.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	// Reasoning carries a provider's signed reasoning block so it can be
	// replayed on the next step of a tool loop (Anthropic requires this).
	Reasoning          string `json:"-"`
	ReasoningSignature string `json:"-"`
}

// ToolCall is a model request to run a tool. Input is raw JSON.
type ToolCall struct {
	ID    string
	Name  string
	Input string
}

// Request is a single provider call (one step of a generation).
type Request struct {
	Messages []Message
	Tools    ToolSet
}

// StepStream yields the events of one provider call in arrival order.
type StepStream interface {
	Next() bool
	Event() Event
	Err() error
	Close() error
}

// LanguageModel is a callable model handle produced by the Adapter.
type LanguageModel interface {
	Provider() ProviderID
	ModelID() string
	Stream(ctx context.Context, req Request) (StepStream, error)
}
