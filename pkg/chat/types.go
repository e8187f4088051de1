// Package chat runs one response generation end to end: it composes the
// prompt, opens the provider stream, persists every update to the target
// message and absorbs all failures into that message.
package chat

import (
	"context"

	"aichat/pkg/ai"
)

// MessageTypeError marks a message whose content is a rendered error.
const MessageTypeError = "error"

// MessagePatch is a partial message update. Nil fields are left untouched;
// a Thinking pointer to "" clears the stored thinking and an empty non-nil
// Sources clears the stored sources. Type goes with Content: a patch that
// sets Content with an empty Type marks the message as normal again.
type MessagePatch struct {
	Content  *string     `json:"content,omitempty"`
	Thinking *string     `json:"thinking,omitempty"`
	Sources  []ai.Source `json:"sources,omitempty"`
	Type     string      `json:"type,omitempty"`
}

// MessageUpdater persists message patches.
type MessageUpdater interface {
	UpdateMessage(ctx context.Context, chatID, messageID string, patch MessagePatch) error
}

// KeyStore returns the API keys a user has configured, by provider.
type KeyStore interface {
	GetAPIKeys(ctx context.Context, userID string) (map[ai.ProviderID]string, error)
}

// HistoryMessage is one prior turn supplied by the caller.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one generation request.
type Request struct {
	UserID          string           `json:"user_id"`
	ChatID          string           `json:"chat_id"`
	MessageID       string           `json:"message_id"`
	Prompt          string           `json:"prompt"`
	ModelID         string           `json:"model_id"`
	History         []HistoryMessage `json:"history,omitempty"`
	EnableWebSearch bool             `json:"enable_web_search,omitempty"`
}

// Result is what a generation returns to its caller. On failure Content
// holds the rendered error text.
type Result struct {
	Content  string      `json:"content"`
	Thinking string      `json:"thinking,omitempty"`
	Sources  []ai.Source `json:"sources,omitempty"`
}

func strPtr(s string) *string {
	return &s
}
