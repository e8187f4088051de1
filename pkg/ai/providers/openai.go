package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"aichat/pkg/ai"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/tidwall/gjson"
)

const (
	openAIDefaultAPIURL = "https://api.openai.com/v1"
	xaiDefaultAPIURL    = "https://api.x.ai/v1"
	groqDefaultAPIURL   = "https://api.groq.com/openai/v1"

	defaultStreamTimeout = 5 * time.Minute
)

// OpenAIModel is a model handle for OpenAI and OpenAI-compatible APIs.
type OpenAIModel struct {
	client      openai.Client
	provider    ai.ProviderID
	model       string
	maxTokens   int
	temperature *float64

	// reasoningField names the non-standard delta field carrying native
	// reasoning, if the provider has one.
	reasoningField string
}

// NewOpenAIModel creates an OpenAI model handle.
func NewOpenAIModel(cfg ai.ProviderConfig) (ai.LanguageModel, error) {
	return newOpenAICompatible(cfg, openAIDefaultAPIURL, "")
}

// NewXAIModel creates an xAI (Grok) model handle. Grok reasoning models
// stream their reasoning in delta.reasoning_content.
func NewXAIModel(cfg ai.ProviderConfig) (ai.LanguageModel, error) {
	field := ""
	if cfg.Reasoning {
		field = "reasoning_content"
	}
	return newOpenAICompatible(cfg, xaiDefaultAPIURL, field)
}

// NewGroqModel creates a Groq model handle.
func NewGroqModel(cfg ai.ProviderConfig) (ai.LanguageModel, error) {
	return newOpenAICompatible(cfg, groqDefaultAPIURL, "")
}

func newOpenAICompatible(cfg ai.ProviderConfig, defaultURL, reasoningField string) (ai.LanguageModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		slog.Debug("openai_compatible_missing_key", "provider", cfg.Provider)
		return nil, &ai.EmptyAPIKeyError{Provider: cfg.Provider}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%s model is required", cfg.Provider)
	}

	apiURL := strings.TrimSpace(cfg.BaseURL)
	if apiURL == "" {
		apiURL = defaultURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultStreamTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(apiURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	slog.Debug("openai_compatible_ready",
		"provider", cfg.Provider,
		"api_url", apiURL,
		"model", cfg.Model,
	)
	return &OpenAIModel{
		client:         client,
		provider:       cfg.Provider,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		reasoningField: reasoningField,
	}, nil
}

// Provider returns the provider id.
func (m *OpenAIModel) Provider() ai.ProviderID { return m.provider }

// ModelID returns the model id.
func (m *OpenAIModel) ModelID() string { return m.model }

// Stream sends a streaming chat completion request for one step.
func (m *OpenAIModel) Stream(ctx context.Context, req ai.Request) (ai.StepStream, error) {
	params, err := m.buildChatParams(req)
	if err != nil {
		return nil, err
	}

	slog.Debug("openai_compatible_stream_request",
		"provider", m.provider,
		"model", m.model,
		"message_count", len(req.Messages),
		"tool_count", len(params.Tools),
	)
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, toOpenAIRequestError(m.provider, err)
	}

	return &openAIStream{
		stream:         stream,
		provider:       m.provider,
		reasoningField: m.reasoningField,
	}, nil
}

func (m *OpenAIModel) buildChatParams(req ai.Request) (openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("messages are required")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		param, err := toChatMessageParam(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, param)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.model),
		Messages: messages,
	}

	if _, ok := req.Tools.Native(); ok {
		params.WebSearchOptions = openai.ChatCompletionNewParamsWebSearchOptions{
			SearchContextSize: "medium",
		}
	}
	for _, tool := range req.Tools.Functions() {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  openai.FunctionParameters(tool.Parameters),
		}))
	}

	if m.temperature != nil {
		params.Temperature = openai.Float(*m.temperature)
	}
	if m.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(m.maxTokens))
	}

	return params, nil
}

func toChatMessageParam(msg ai.Message) (openai.ChatCompletionMessageParamUnion, error) {
	role := strings.ToLower(strings.TrimSpace(msg.Role))
	switch role {
	case "system":
		return openai.SystemMessage(msg.Content), nil
	case "user":
		return openai.UserMessage(msg.Content), nil
	case "assistant":
		if len(msg.ToolCalls) == 0 {
			return openai.AssistantMessage(msg.Content), nil
		}
		calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Input,
					},
				},
			})
		}
		assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
		if msg.Content != "" {
			assistant.Content.OfString = openai.String(msg.Content)
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}, nil
	case "tool":
		return openai.ToolMessage(msg.Content, msg.ToolCallID), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role: %s", msg.Role)
	}
}

func toOpenAIRequestError(provider ai.ProviderID, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ai.RequestError{
			Provider:   provider,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return err
}

type openAIToolCall struct {
	id   string
	name string
	args strings.Builder
}

type openAIStream struct {
	stream         *ssestream.Stream[openai.ChatCompletionChunk]
	provider       ai.ProviderID
	reasoningField string

	pending  []ai.Event
	current  ai.Event
	text     strings.Builder
	calls    map[int64]*openAIToolCall
	finished bool
	err      error
}

func (s *openAIStream) Next() bool {
	for len(s.pending) == 0 {
		if s.finished || s.err != nil {
			return false
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.err = toOpenAIRequestError(s.provider, err)
				return false
			}
			s.finish("")
			continue
		}
		s.handleChunk(s.stream.Current())
	}

	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

func (s *openAIStream) handleChunk(chunk openai.ChatCompletionChunk) {
	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]
	raw := chunk.RawJSON()

	if s.reasoningField != "" {
		if reasoning := gjson.Get(raw, "choices.0.delta."+s.reasoningField).String(); reasoning != "" {
			s.pending = append(s.pending, ai.ReasoningDelta{Text: reasoning})
		}
	}

	if choice.Delta.Content != "" {
		s.text.WriteString(choice.Delta.Content)
		s.pending = append(s.pending, ai.TextDelta{Text: choice.Delta.Content})
	}

	gjson.Get(raw, "choices.0.delta.annotations").ForEach(func(_, annotation gjson.Result) bool {
		if annotation.Get("type").String() != "url_citation" {
			return true
		}
		url := annotation.Get("url_citation.url").String()
		if url == "" {
			return true
		}
		s.pending = append(s.pending, ai.SourceEvent{Source: ai.Source{
			Type:  ai.SourceTypeURL,
			Title: annotation.Get("url_citation.title").String(),
			URL:   url,
		}})
		return true
	})

	for _, tc := range choice.Delta.ToolCalls {
		if s.calls == nil {
			s.calls = make(map[int64]*openAIToolCall)
		}
		call, ok := s.calls[tc.Index]
		if !ok {
			call = &openAIToolCall{}
			s.calls[tc.Index] = call
		}
		if tc.ID != "" {
			call.id = tc.ID
		}
		if tc.Function.Name != "" {
			call.name = tc.Function.Name
		}
		call.args.WriteString(tc.Function.Arguments)
	}

	if choice.FinishReason != "" {
		s.finish(choice.FinishReason)
	}
}

func (s *openAIStream) finish(reason string) {
	if s.finished {
		return
	}
	s.finished = true

	indexes := make([]int64, 0, len(s.calls))
	for idx := range s.calls {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	calls := make([]ai.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		c := s.calls[idx]
		call := ai.ToolCall{ID: c.id, Name: c.name, Input: c.args.String()}
		calls = append(calls, call)
		s.pending = append(s.pending, ai.ToolCallEvent{Call: call})
	}

	s.pending = append(s.pending, ai.StepFinish{
		Reason:    openAIFinishReason(reason, len(calls) > 0),
		ToolCalls: calls,
		Text:      s.text.String(),
	})
}

func openAIFinishReason(reason string, hasCalls bool) ai.FinishReason {
	switch reason {
	case "tool_calls", "function_call":
		return ai.FinishToolCalls
	case "length":
		return ai.FinishLength
	case "stop":
		return ai.FinishStop
	case "":
		if hasCalls {
			return ai.FinishToolCalls
		}
		return ai.FinishStop
	default:
		return ai.FinishOther
	}
}

func (s *openAIStream) Event() ai.Event {
	return s.current
}

func (s *openAIStream) Err() error {
	return s.err
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

// Ensure interface compliance
var _ ai.LanguageModel = (*OpenAIModel)(nil)
