package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"aichat/pkg/ai"
)

const (
	anthropicDefaultAPIURL    = "https://api.anthropic.com/v1"
	anthropicAPIVersion       = "2023-06-01"
	anthropicDefaultMaxTokens = 4096
	anthropicThinkingBudget   = 2048
)

// AnthropicModel is a model handle for the Anthropic messages API.
type AnthropicModel struct {
	apiKey      string
	apiURL      string
	httpClient  *http.Client
	model       string
	maxTokens   int
	temperature *float64
	reasoning   bool
}

// NewAnthropicModel creates an Anthropic model handle.
func NewAnthropicModel(cfg ai.ProviderConfig) (ai.LanguageModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ai.EmptyAPIKeyError{Provider: ai.ProviderAnthropic}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	apiURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if apiURL == "" {
		apiURL = anthropicDefaultAPIURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultStreamTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	slog.Debug("anthropic_model_ready", "api_url", apiURL, "model", cfg.Model, "reasoning", cfg.Reasoning)
	return &AnthropicModel{
		apiKey:      cfg.APIKey,
		apiURL:      apiURL,
		httpClient:  httpClient,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		reasoning:   cfg.Reasoning,
	}, nil
}

// anthropicRequest is the request body for Anthropic's messages API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Stream      bool               `json:"stream"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// anthropicStreamEvent represents a streaming event from Anthropic.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
		ID       string `json:"id"`
		Name     string `json:"name"`
	} `json:"content_block"`
	Error anthropicErrorBody `json:"error"`
}

type anthropicErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Provider returns the provider id.
func (m *AnthropicModel) Provider() ai.ProviderID { return ai.ProviderAnthropic }

// ModelID returns the model id.
func (m *AnthropicModel) ModelID() string { return m.model }

// Stream sends a streaming messages request for one step.
func (m *AnthropicModel) Stream(ctx context.Context, req ai.Request) (ai.StepStream, error) {
	anthropicReq, err := m.buildRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	m.setHeaders(httpReq)

	slog.Debug("anthropic_stream_request",
		"model", m.model,
		"message_count", len(anthropicReq.Messages),
		"tool_count", len(anthropicReq.Tools),
		"thinking", anthropicReq.Thinking != nil,
	)
	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, anthropicHTTPError(resp.StatusCode, respBody)
	}

	return &anthropicStream{
		reader: bufio.NewReader(resp.Body),
		body:   resp.Body,
		blocks: make(map[int]*anthropicBlock),
	}, nil
}

func (m *AnthropicModel) buildRequest(req ai.Request) (*anthropicRequest, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	systemParts := make([]string, 0, 2)
	messages := make([]anthropicMessage, 0, len(req.Messages))

	for _, msg := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "system", "developer":
			if content := strings.TrimSpace(msg.Content); content != "" {
				systemParts = append(systemParts, content)
			}
		case "assistant":
			messages = append(messages, anthropicAssistantMessage(msg))
		case "tool":
			block := anthropicContent{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			}
			// Results of one step share a single user turn.
			if n := len(messages); n > 0 && messages[n-1].Role == "user" && lastBlockIs(messages[n-1], "tool_result") {
				messages[n-1].Content = append(messages[n-1].Content, block)
				continue
			}
			messages = append(messages, anthropicMessage{Role: "user", Content: []anthropicContent{block}})
		default:
			messages = append(messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: msg.Content}},
			})
		}
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one user or assistant message is required")
	}

	maxTokens := m.maxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	out := &anthropicRequest{
		Model:     m.model,
		Messages:  messages,
		MaxTokens: maxTokens,
		System:    strings.Join(systemParts, "\n\n"),
		Stream:    true,
	}

	if m.reasoning {
		out.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: anthropicThinkingBudget}
		if out.MaxTokens <= anthropicThinkingBudget {
			out.MaxTokens = anthropicThinkingBudget + anthropicDefaultMaxTokens
		}
	} else {
		// Extended thinking rejects a custom temperature.
		out.Temperature = m.temperature
	}

	for _, tool := range req.Tools.Functions() {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	return out, nil
}

func anthropicAssistantMessage(msg ai.Message) anthropicMessage {
	content := make([]anthropicContent, 0, len(msg.ToolCalls)+2)
	if msg.Reasoning != "" && msg.ReasoningSignature != "" {
		content = append(content, anthropicContent{
			Type:      "thinking",
			Thinking:  msg.Reasoning,
			Signature: msg.ReasoningSignature,
		})
	}
	if msg.Content != "" {
		content = append(content, anthropicContent{Type: "text", Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		input := json.RawMessage(tc.Input)
		if len(bytes.TrimSpace(input)) == 0 {
			input = json.RawMessage("{}")
		}
		content = append(content, anthropicContent{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Name,
			Input: input,
		})
	}
	return anthropicMessage{Role: "assistant", Content: content}
}

func lastBlockIs(msg anthropicMessage, blockType string) bool {
	return len(msg.Content) > 0 && msg.Content[len(msg.Content)-1].Type == blockType
}

func (m *AnthropicModel) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

func anthropicHTTPError(status int, body []byte) error {
	var payload struct {
		Error anthropicErrorBody `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		message = payload.Error.Message
	}
	return &ai.RequestError{
		Provider:   ai.ProviderAnthropic,
		StatusCode: status,
		Message:    message,
	}
}

// anthropicErrorStatus maps stream error types to the HTTP status the API
// would have returned for them.
func anthropicErrorStatus(errType string) int {
	switch errType {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "overloaded_error":
		return 529
	default:
		return http.StatusInternalServerError
	}
}

type anthropicBlock struct {
	kind  string
	id    string
	name  string
	input strings.Builder
}

type anthropicStream struct {
	reader *bufio.Reader
	body   io.ReadCloser

	pending   []ai.Event
	current   ai.Event
	blocks    map[int]*anthropicBlock
	text      strings.Builder
	thinking  strings.Builder
	signature string
	calls     []ai.ToolCall
	stop      string
	err       error
	done      bool
}

func (s *anthropicStream) Next() bool {
	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			return false
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.finish()
				continue
			}
			s.err = err
			return false
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.finish()
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			slog.Debug("anthropic_stream_bad_event", "error", err)
			continue
		}
		s.handleEvent(event)
	}

	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

func (s *anthropicStream) handleEvent(event anthropicStreamEvent) {
	switch event.Type {
	case "content_block_start":
		block := &anthropicBlock{
			kind: event.ContentBlock.Type,
			id:   event.ContentBlock.ID,
			name: event.ContentBlock.Name,
		}
		s.blocks[event.Index] = block
		if event.ContentBlock.Text != "" {
			s.emitText(event.ContentBlock.Text)
		}
		if event.ContentBlock.Thinking != "" {
			s.emitThinking(event.ContentBlock.Thinking)
		}
	case "content_block_delta":
		switch event.Delta.Type {
		case "text_delta":
			s.emitText(event.Delta.Text)
		case "thinking_delta":
			s.emitThinking(event.Delta.Thinking)
		case "signature_delta":
			s.signature += event.Delta.Signature
		case "input_json_delta":
			if block, ok := s.blocks[event.Index]; ok {
				block.input.WriteString(event.Delta.PartialJSON)
			}
		}
	case "content_block_stop":
		block, ok := s.blocks[event.Index]
		if !ok || block.kind != "tool_use" {
			return
		}
		call := ai.ToolCall{ID: block.id, Name: block.name, Input: block.input.String()}
		s.calls = append(s.calls, call)
		s.pending = append(s.pending, ai.ToolCallEvent{Call: call})
	case "message_delta":
		if event.Delta.StopReason != "" {
			s.stop = event.Delta.StopReason
		}
	case "message_stop":
		s.finish()
	case "error":
		s.err = &ai.RequestError{
			Provider:   ai.ProviderAnthropic,
			StatusCode: anthropicErrorStatus(event.Error.Type),
			Message:    event.Error.Message,
		}
	}
}

func (s *anthropicStream) emitText(text string) {
	if text == "" {
		return
	}
	s.text.WriteString(text)
	s.pending = append(s.pending, ai.TextDelta{Text: text})
}

func (s *anthropicStream) emitThinking(text string) {
	if text == "" {
		return
	}
	s.thinking.WriteString(text)
	s.pending = append(s.pending, ai.ReasoningDelta{Text: text})
}

func (s *anthropicStream) finish() {
	if s.done {
		return
	}
	s.done = true

	reason := ai.FinishStop
	switch s.stop {
	case "tool_use":
		reason = ai.FinishToolCalls
	case "max_tokens":
		reason = ai.FinishLength
	case "", "end_turn", "stop_sequence":
		if len(s.calls) > 0 {
			reason = ai.FinishToolCalls
		}
	default:
		reason = ai.FinishOther
	}

	s.pending = append(s.pending, ai.StepFinish{
		Reason:             reason,
		ToolCalls:          s.calls,
		Text:               s.text.String(),
		ProviderReasoning:  s.thinking.String(),
		ReasoningSignature: s.signature,
	})
}

func (s *anthropicStream) Event() ai.Event {
	return s.current
}

func (s *anthropicStream) Err() error {
	return s.err
}

func (s *anthropicStream) Close() error {
	return s.body.Close()
}

// Ensure interface compliance
var _ ai.LanguageModel = (*AnthropicModel)(nil)
