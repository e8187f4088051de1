package providers

import (
	"context"
	"errors"
	"iter"
	"math"
	"testing"

	"aichat/pkg/ai"

	"google.golang.org/genai"
)

type stubGoogleModelsClient struct {
	streamSeq iter.Seq2[*genai.GenerateContentResponse, error]

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
}

func (s *stubGoogleModelsClient) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	s.gotModel = model
	s.gotContents = contents
	s.gotConfig = cfg
	if s.streamSeq != nil {
		return s.streamSeq
	}
	return func(yield func(*genai.GenerateContentResponse, error) bool) {}
}

func googleResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: parts,
				},
			},
		},
	}
}

func withStubGoogleClient(t *testing.T, stub *stubGoogleModelsClient) *genai.ClientConfig {
	t.Helper()
	origNewClient := newGoogleClient
	t.Cleanup(func() {
		newGoogleClient = origNewClient
	})

	gotCfg := &genai.ClientConfig{}
	newGoogleClient = func(ctx context.Context, cfg *genai.ClientConfig) (googleModelsClient, error) {
		*gotCfg = *cfg
		return stub, nil
	}
	return gotCfg
}

func TestNewGoogleModel_RequiresAPIKey(t *testing.T) {
	_, err := NewGoogleModel(ai.ProviderConfig{Provider: ai.ProviderGoogle, Model: "gemini-2.5-flash"})
	var keyErr *ai.EmptyAPIKeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("Expected EmptyAPIKeyError, got %v", err)
	}
	if keyErr.Provider != ai.ProviderGoogle {
		t.Fatalf("Expected provider google, got %q", keyErr.Provider)
	}
}

func TestGoogleModel_StreamThoughtsAndText(t *testing.T) {
	stub := &stubGoogleModelsClient{
		streamSeq: func(yield func(*genai.GenerateContentResponse, error) bool) {
			if !yield(googleResponse(&genai.Part{Text: "Pondering", Thought: true}), nil) {
				return
			}
			if !yield(googleResponse(&genai.Part{Text: "Hello"}), nil) {
				return
			}
			resp := googleResponse(&genai.Part{Text: " world"})
			resp.Candidates[0].FinishReason = genai.FinishReasonStop
			yield(resp, nil)
		},
	}
	gotCfg := withStubGoogleClient(t, stub)

	temp := 0.4
	model, err := NewGoogleModel(ai.ProviderConfig{
		Provider:    ai.ProviderGoogle,
		APIKey:      " test-key ",
		Model:       "gemini-2.5-flash",
		MaxTokens:   256,
		Temperature: &temp,
		Reasoning:   true,
	})
	if err != nil {
		t.Fatalf("NewGoogleModel() error: %v", err)
	}
	if gotCfg.APIKey != "test-key" {
		t.Fatalf("Expected trimmed API key, got %q", gotCfg.APIKey)
	}
	if gotCfg.Backend != genai.BackendGeminiAPI {
		t.Fatalf("Expected Gemini API backend, got %v", gotCfg.Backend)
	}

	stream, err := model.Stream(context.Background(), ai.Request{
		Messages: []ai.Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "again"},
		},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	text, reasoning := textOf(events)
	if text != "Hello world" {
		t.Fatalf("Expected text 'Hello world', got %q", text)
	}
	if reasoning != "Pondering" {
		t.Fatalf("Expected reasoning 'Pondering', got %q", reasoning)
	}
	finish := lastFinish(t, events)
	if finish.Reason != ai.FinishStop || finish.ProviderReasoning != "Pondering" {
		t.Fatalf("Unexpected finish: %#v", finish)
	}

	if stub.gotModel != "gemini-2.5-flash" {
		t.Fatalf("Expected model gemini-2.5-flash, got %q", stub.gotModel)
	}
	if len(stub.gotContents) != 3 {
		t.Fatalf("Expected 3 contents, got %d", len(stub.gotContents))
	}
	if stub.gotContents[1].Role != genai.RoleModel {
		t.Fatalf("Expected assistant mapped to model role, got %q", stub.gotContents[1].Role)
	}
	cfg := stub.gotConfig
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "sys" {
		t.Fatalf("Expected system instruction 'sys', got %#v", cfg.SystemInstruction)
	}
	if cfg.Temperature == nil || math.Abs(float64(*cfg.Temperature)-0.4) > 0.0001 {
		t.Fatalf("Expected temperature 0.4, got %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 256 {
		t.Fatalf("Expected max output tokens 256, got %d", cfg.MaxOutputTokens)
	}
	if cfg.ThinkingConfig == nil || !cfg.ThinkingConfig.IncludeThoughts {
		t.Fatalf("Expected thoughts included, got %#v", cfg.ThinkingConfig)
	}
	if len(cfg.Tools) != 0 {
		t.Fatalf("Expected no tools, got %d", len(cfg.Tools))
	}
}

func TestGoogleModel_SearchGroundingSources(t *testing.T) {
	stub := &stubGoogleModelsClient{
		streamSeq: func(yield func(*genai.GenerateContentResponse, error) bool) {
			resp := googleResponse(&genai.Part{Text: "Grounded"})
			resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://a.test", Title: "A"}},
					{Web: &genai.GroundingChunkWeb{URI: "https://a.test", Title: "A"}},
					{Web: &genai.GroundingChunkWeb{URI: "https://b.test", Title: "B"}},
				},
			}
			yield(resp, nil)
		},
	}
	withStubGoogleClient(t, stub)

	model, err := NewGoogleModel(ai.ProviderConfig{
		Provider:        ai.ProviderGoogle,
		APIKey:          "test-key",
		Model:           "gemini-2.0-flash",
		SearchGrounding: true,
	})
	if err != nil {
		t.Fatalf("NewGoogleModel() error: %v", err)
	}

	stream, err := model.Stream(context.Background(), ai.Request{
		Messages: []ai.Message{{Role: "user", Content: "news"}},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	var urls []string
	for _, ev := range events {
		if s, ok := ev.(ai.SourceEvent); ok {
			urls = append(urls, s.Source.URL)
		}
	}
	if len(urls) != 2 || urls[0] != "https://a.test" || urls[1] != "https://b.test" {
		t.Fatalf("Expected deduplicated sources, got %v", urls)
	}
	if len(stub.gotConfig.Tools) != 1 || stub.gotConfig.Tools[0].GoogleSearch == nil {
		t.Fatalf("Expected google search tool, got %#v", stub.gotConfig.Tools)
	}
	if stub.gotConfig.ThinkingConfig != nil {
		t.Fatalf("Expected no thinking config, got %#v", stub.gotConfig.ThinkingConfig)
	}
}

func TestGoogleModel_FunctionCall(t *testing.T) {
	stub := &stubGoogleModelsClient{
		streamSeq: func(yield func(*genai.GenerateContentResponse, error) bool) {
			yield(googleResponse(&genai.Part{FunctionCall: &genai.FunctionCall{
				Name: "web_search",
				Args: map[string]any{"query": "go"},
			}}), nil)
		},
	}
	withStubGoogleClient(t, stub)

	model, err := NewGoogleModel(ai.ProviderConfig{Provider: ai.ProviderGoogle, APIKey: "k", Model: "gemini-2.0-flash"})
	if err != nil {
		t.Fatalf("NewGoogleModel() error: %v", err)
	}

	stream, err := model.Stream(context.Background(), ai.Request{
		Messages: []ai.Message{{Role: "user", Content: "q"}},
		Tools:    ai.ToolSet{"web_search": {Name: "web_search", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	finish := lastFinish(t, events)
	if finish.Reason != ai.FinishToolCalls || len(finish.ToolCalls) != 1 {
		t.Fatalf("Expected one tool call, got %#v", finish)
	}
	if finish.ToolCalls[0].Input != `{"query":"go"}` {
		t.Fatalf("Unexpected tool input %q", finish.ToolCalls[0].Input)
	}
	if finish.ToolCalls[0].ID == "" {
		t.Fatal("Expected generated tool call id")
	}
	decls := stub.gotConfig.Tools[0].FunctionDeclarations
	if len(decls) != 1 || decls[0].Name != "web_search" {
		t.Fatalf("Expected web_search declaration, got %#v", decls)
	}
}

func TestGoogleModel_StreamError(t *testing.T) {
	stub := &stubGoogleModelsClient{
		streamSeq: func(yield func(*genai.GenerateContentResponse, error) bool) {
			if !yield(googleResponse(&genai.Part{Text: "partial"}), nil) {
				return
			}
			yield(nil, genai.APIError{Code: 429, Message: "quota"})
		},
	}
	withStubGoogleClient(t, stub)

	model, err := NewGoogleModel(ai.ProviderConfig{Provider: ai.ProviderGoogle, APIKey: "k", Model: "gemini-2.0-flash"})
	if err != nil {
		t.Fatalf("NewGoogleModel() error: %v", err)
	}

	stream, err := model.Stream(context.Background(), ai.Request{
		Messages: []ai.Message{{Role: "user", Content: "q"}},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer stream.Close()

	var text string
	for stream.Next() {
		if delta, ok := stream.Event().(ai.TextDelta); ok {
			text += delta.Text
		}
	}
	if text != "partial" {
		t.Fatalf("Expected partial text before error, got %q", text)
	}
	var reqErr *ai.RequestError
	if !errors.As(stream.Err(), &reqErr) || reqErr.StatusCode != 429 {
		t.Fatalf("Expected 429 RequestError, got %v", stream.Err())
	}
}

func TestGoogleModel_BuildRequestValidation(t *testing.T) {
	model := &GoogleModel{model: "gemini-2.0-flash"}
	if _, _, err := model.buildRequest(ai.Request{}); err == nil {
		t.Fatal("Expected error for empty messages")
	}
	if _, _, err := model.buildRequest(ai.Request{Messages: []ai.Message{{Role: "system", Content: "only"}}}); err == nil {
		t.Fatal("Expected error for system-only messages")
	}
}
