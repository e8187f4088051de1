package ai

import "encoding/json"

// Event is one normalized stream event. The concrete types below are the
// only implementations; consumers switch on them.
type Event interface {
	isEvent()
}

// TextDelta is a chunk of answer text.
type TextDelta struct {
	Text string
}

// ReasoningDelta is a chunk from a provider's native reasoning channel.
type ReasoningDelta struct {
	Text string
}

// ToolCallEvent is emitted once a tool call has been fully received.
type ToolCallEvent struct {
	Call ToolCall
}

// ToolResultEvent carries the decoded output of an executed tool.
type ToolResultEvent struct {
	CallID   string
	ToolName string
	Output   any
	Raw      json.RawMessage
}

// SourceEvent is a citation reported by the provider itself (grounding
// chunks, url annotations). TextStream collects these as final sources.
type SourceEvent struct {
	Source Source
}

// StepFinish marks the end of one provider call.
type StepFinish struct {
	Reason    FinishReason
	ToolCalls []ToolCall
	// Text is the answer text produced during this step.
	Text string
	// ProviderReasoning is a completed reasoning payload reported natively
	// by the provider (thinking block, thought summary).
	ProviderReasoning  string
	ReasoningSignature string
	// MiddlewareReasoning is set by the tag-extraction middleware.
	MiddlewareReasoning string
}

// UnknownEvent is any provider event without a normalized shape.
type UnknownEvent struct {
	Type string
}

func (TextDelta) isEvent()       {}
func (ReasoningDelta) isEvent()  {}
func (ToolCallEvent) isEvent()   {}
func (ToolResultEvent) isEvent() {}
func (SourceEvent) isEvent()     {}
func (StepFinish) isEvent()      {}
func (UnknownEvent) isEvent()    {}

// FinishReason explains why a step ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool-calls"
	FinishLength    FinishReason = "length"
	FinishOther     FinishReason = "other"
)

// SourceTypeURL marks a web citation. Only url sources are persisted from
// a stream's final source list.
const SourceTypeURL = "url"

// Source is a citation attached to an assistant message.
type Source struct {
	Type    string `json:"-"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt,omitempty"`
}
