package ai

import (
	"log/slog"
	"strings"
	"time"
)

// PromptInput is everything the composer needs to build a request.
type PromptInput struct {
	Prompt   string
	History  []Message
	Provider ProviderInfo
	Model    Model

	HasToolSupport           bool
	AddReasoningInstructions bool
}

// ComposeMessages builds the ordered message list:
// system, optional provider addendum, history unchanged, user turn.
func ComposeMessages(in PromptInput) []Message {
	messages := make([]Message, 0, len(in.History)+3)
	messages = append(messages, Message{
		Role:    "system",
		Content: SystemPrompt(in.HasToolSupport, in.AddReasoningInstructions),
	})

	if in.HasToolSupport && in.Provider.SearchSystemAddendum {
		messages = append(messages, Message{Role: "system", Content: legacySearchInstructions()})
	}

	messages = append(messages, in.History...)

	user := in.Prompt
	if in.HasToolSupport && in.Provider.InlineToolSuffix {
		user += "\n\n" + toolUseSuffix()
	}
	if in.AddReasoningInstructions {
		user += "\n\n" + reasoningSuffix()
	}
	messages = append(messages, Message{Role: "user", Content: user})

	if window := in.Model.Context.Window; window > 0 {
		if estimate := EstimateTokens(messages); estimate > window {
			slog.Warn("prompt_exceeds_context_window",
				"model", in.Model.ID,
				"estimated_tokens", estimate,
				"context_window", window,
			)
		}
	}

	return messages
}

// SystemPrompt selects exactly one system prompt variant.
func SystemPrompt(hasToolSupport, reasoning bool) string {
	switch {
	case hasToolSupport && reasoning:
		return webSearchReasoningSystemPrompt()
	case hasToolSupport:
		return webSearchSystemPrompt()
	case reasoning:
		return reasoningSystemPrompt()
	default:
		return defaultSystemPrompt()
	}
}

func basePrompt() []string {
	return []string{
		"You are a helpful AI assistant in a chat application.",
		"Answer clearly and concisely, using Markdown for structure when it helps.",
		"Use fenced code blocks with a language tag for code.",
		"Today's date is " + time.Now().UTC().Format("January 2, 2006") + ".",
	}
}

func defaultSystemPrompt() string {
	return strings.Join(basePrompt(), " ")
}

func webSearchSystemPrompt() string {
	return strings.Join(append(basePrompt(),
		"You can search the web.",
		"Search when the question needs recent or verifiable information, and skip searching for things you already know well.",
		"Cite the pages you relied on with Markdown links.",
	), " ")
}

func reasoningSystemPrompt() string {
	return strings.Join(append(basePrompt(),
		"Think through the problem step by step before answering.",
		"Put all of your reasoning inside <think></think> tags, then give the final answer after the closing tag.",
	), " ")
}

func webSearchReasoningSystemPrompt() string {
	return strings.Join(append(basePrompt(),
		"You can search the web.",
		"Search when the question needs recent or verifiable information.",
		"Think through the problem step by step inside <think></think> tags, including whether a search is needed, then give the final answer after the closing tag.",
		"Cite the pages you relied on with Markdown links.",
	), " ")
}

func legacySearchInstructions() string {
	return strings.Join([]string{
		"Web search is available through the web_search tool.",
		"Call it with a short, specific query.",
		"After results arrive, answer from them and cite the sources.",
	}, " ")
}

func toolUseSuffix() string {
	return "If this needs current information, call the web_search tool before answering."
}

func reasoningSuffix() string {
	return "Remember: reason inside <think></think> tags first, then answer."
}
