package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"aichat/pkg/ai"

	"google.golang.org/genai"
)

type googleModelsClient interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

var newGoogleClient = func(ctx context.Context, cfg *genai.ClientConfig) (googleModelsClient, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// GoogleModel is a model handle for the Gemini API.
type GoogleModel struct {
	models          googleModelsClient
	model           string
	maxTokens       int
	temperature     *float64
	timeout         time.Duration
	reasoning       bool
	searchGrounding bool
}

// NewGoogleModel creates a Gemini model handle.
func NewGoogleModel(cfg ai.ProviderConfig) (ai.LanguageModel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		slog.Debug("google_model_missing_key")
		return nil, &ai.EmptyAPIKeyError{Provider: ai.ProviderGoogle}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("google model is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	models, err := newGoogleClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultStreamTimeout
	}

	slog.Debug("google_model_ready",
		"model", cfg.Model,
		"reasoning", cfg.Reasoning,
		"search_grounding", cfg.SearchGrounding,
	)
	return &GoogleModel{
		models:          models,
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		temperature:     cfg.Temperature,
		timeout:         timeout,
		reasoning:       cfg.Reasoning,
		searchGrounding: cfg.SearchGrounding,
	}, nil
}

// Provider returns the provider id.
func (m *GoogleModel) Provider() ai.ProviderID { return ai.ProviderGoogle }

// ModelID returns the model id.
func (m *GoogleModel) ModelID() string { return m.model }

// Stream sends a streaming generate request for one step.
func (m *GoogleModel) Stream(ctx context.Context, req ai.Request) (ai.StepStream, error) {
	contents, cfg, err := m.buildRequest(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := m.withTimeout(ctx)
	seq := m.models.GenerateContentStream(callCtx, m.model, contents, cfg)
	next, stop := iter.Pull2(seq)

	return &googleStream{
		next:   next,
		stop:   stop,
		cancel: cancel,
		seen:   make(map[string]bool),
	}, nil
}

func (m *GoogleModel) buildRequest(req ai.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if len(req.Messages) == 0 {
		return nil, nil, fmt.Errorf("messages are required")
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	systemParts := make([]string, 0, 2)

	for _, msg := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "system", "developer":
			if content := strings.TrimSpace(msg.Content); content != "" {
				systemParts = append(systemParts, content)
			}
		case "assistant":
			parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Input != "" {
					if err := json.Unmarshal([]byte(tc.Input), &args); err != nil {
						return nil, nil, fmt.Errorf("decode tool call %s arguments: %w", tc.Name, err)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case "tool":
			response := map[string]any{}
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"output": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: response,
				}}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("at least one user or assistant message is required")
	}

	config := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}
	if m.temperature != nil {
		config.Temperature = genai.Ptr(float32(*m.temperature))
	}
	if m.maxTokens > 0 {
		config.MaxOutputTokens = int32(m.maxTokens)
	}
	if m.reasoning {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}

	if m.searchGrounding {
		config.Tools = append(config.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	} else if functions := req.Tools.Functions(); len(functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(functions))
		for _, tool := range functions {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 tool.Name,
				Description:          tool.Description,
				ParametersJsonSchema: tool.Parameters,
			})
		}
		config.Tools = append(config.Tools, &genai.Tool{FunctionDeclarations: decls})
	}

	return contents, config, nil
}

func (m *GoogleModel) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline || m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func toGoogleRequestError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ai.RequestError{Provider: ai.ProviderGoogle, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &ai.RequestError{Provider: ai.ProviderGoogle, StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return err
}

type googleStream struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	cancel context.CancelFunc

	pending  []ai.Event
	current  ai.Event
	text     strings.Builder
	thoughts strings.Builder
	calls    []ai.ToolCall
	reason   genai.FinishReason
	seen     map[string]bool
	err      error
	done     bool
}

func (s *googleStream) Next() bool {
	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			return false
		}

		resp, err, ok := s.next()
		if !ok {
			s.finish()
			continue
		}
		if err != nil {
			s.err = toGoogleRequestError(err)
			return false
		}
		s.handleResponse(resp)
	}

	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

func (s *googleStream) handleResponse(resp *genai.GenerateContentResponse) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return
	}
	candidate := resp.Candidates[0]

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			switch {
			case part.FunctionCall != nil:
				input, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					input = []byte("{}")
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", len(s.calls))
				}
				call := ai.ToolCall{ID: id, Name: part.FunctionCall.Name, Input: string(input)}
				s.calls = append(s.calls, call)
				s.pending = append(s.pending, ai.ToolCallEvent{Call: call})
			case part.Text == "":
			case part.Thought:
				s.thoughts.WriteString(part.Text)
				s.pending = append(s.pending, ai.ReasoningDelta{Text: part.Text})
			default:
				s.text.WriteString(part.Text)
				s.pending = append(s.pending, ai.TextDelta{Text: part.Text})
			}
		}
	}

	if meta := candidate.GroundingMetadata; meta != nil {
		for _, chunk := range meta.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || s.seen[chunk.Web.URI] {
				continue
			}
			s.seen[chunk.Web.URI] = true
			s.pending = append(s.pending, ai.SourceEvent{Source: ai.Source{
				Type:  ai.SourceTypeURL,
				Title: chunk.Web.Title,
				URL:   chunk.Web.URI,
			}})
		}
	}

	if candidate.FinishReason != "" {
		s.reason = candidate.FinishReason
	}
}

func (s *googleStream) finish() {
	if s.done {
		return
	}
	s.done = true

	reason := ai.FinishStop
	switch {
	case len(s.calls) > 0:
		reason = ai.FinishToolCalls
	case s.reason == genai.FinishReasonMaxTokens:
		reason = ai.FinishLength
	case s.reason == "" || s.reason == genai.FinishReasonStop:
	default:
		reason = ai.FinishOther
	}

	s.pending = append(s.pending, ai.StepFinish{
		Reason:            reason,
		ToolCalls:         s.calls,
		Text:              s.text.String(),
		ProviderReasoning: s.thoughts.String(),
	})
}

func (s *googleStream) Event() ai.Event {
	return s.current
}

func (s *googleStream) Err() error {
	return s.err
}

func (s *googleStream) Close() error {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.done = true
	return nil
}

// Ensure interface compliance
var _ ai.LanguageModel = (*GoogleModel)(nil)
