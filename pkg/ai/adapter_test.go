package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTestAdapter(exec ToolExecutor) (*Adapter, *[]ProviderConfig) {
	var configs []ProviderConfig
	registry := NewRegistry()
	for _, p := range DefaultCatalog().Providers() {
		registry.Register(p.ID, func(cfg ProviderConfig) (LanguageModel, error) {
			configs = append(configs, cfg)
			return &stubModel{provider: cfg.Provider, id: cfg.Model}, nil
		})
	}

	opts := []AdapterOption{
		WithProviderSettings(ProviderOpenAI, ProviderSettings{BaseURL: "https://proxy.test/v1", Timeout: time.Minute, MaxTokens: 1024}),
	}
	if exec != nil {
		opts = append(opts, WithWebSearch(exec))
	}
	return NewAdapter(registry, DefaultCatalog(), opts...), &configs
}

func mustModel(t *testing.T, id string) Model {
	t.Helper()
	m, err := DefaultCatalog().Model(id)
	if err != nil {
		t.Fatalf("Model(%q) error: %v", id, err)
	}
	return m
}

func noopSearch(ctx context.Context, input json.RawMessage) (any, error) {
	return nil, nil
}

func TestAdapter_CreateModel_Settings(t *testing.T) {
	a, configs := newTestAdapter(nil)

	model, err := a.CreateModel(ProviderOpenAI, "sk-test", mustModel(t, "gpt-4.1"), false, false)
	if err != nil {
		t.Fatalf("CreateModel() error: %v", err)
	}
	if _, wrapped := model.(*reasoningModel); wrapped {
		t.Fatal("did not expect reasoning middleware for gpt-4.1")
	}

	cfg := (*configs)[0]
	if cfg.APIKey != "sk-test" || cfg.Model != "gpt-4.1" {
		t.Fatalf("unexpected config: %#v", cfg)
	}
	if cfg.BaseURL != "https://proxy.test/v1" || cfg.Timeout != time.Minute || cfg.MaxTokens != 1024 {
		t.Fatalf("expected provider settings to be applied, got %#v", cfg)
	}
	if cfg.Reasoning || cfg.SearchGrounding {
		t.Fatalf("expected no reasoning or grounding, got %#v", cfg)
	}
}

func TestAdapter_CreateModel_Reasoning(t *testing.T) {
	a, configs := newTestAdapter(nil)

	model, err := a.CreateModel(ProviderGroq, "k", mustModel(t, "deepseek-r1-distill-llama-70b"), false, false)
	if err != nil {
		t.Fatalf("CreateModel() error: %v", err)
	}
	if _, wrapped := model.(*reasoningModel); !wrapped {
		t.Fatal("expected tag reasoning middleware for groq thinking model")
	}
	if (*configs)[0].Reasoning {
		t.Fatal("expected no native reasoning for groq")
	}

	model, err = a.CreateModel(ProviderAnthropic, "k", mustModel(t, "claude-sonnet-4-20250514"), false, false)
	if err != nil {
		t.Fatalf("CreateModel() error: %v", err)
	}
	if _, wrapped := model.(*reasoningModel); wrapped {
		t.Fatal("did not expect middleware for native reasoning provider")
	}
	if !(*configs)[1].Reasoning {
		t.Fatal("expected native reasoning for anthropic thinking model")
	}
}

func TestAdapter_CreateModel_SearchGrounding(t *testing.T) {
	a, configs := newTestAdapter(nil)
	gemini := mustModel(t, "gemini-2.5-flash")

	if _, err := a.CreateModel(ProviderGoogle, "k", gemini, true, true); err != nil {
		t.Fatalf("CreateModel() error: %v", err)
	}
	if _, err := a.CreateModel(ProviderGoogle, "k", gemini, true, false); err != nil {
		t.Fatalf("CreateModel() error: %v", err)
	}

	if !(*configs)[0].SearchGrounding {
		t.Fatal("expected search grounding when web search is enabled")
	}
	if (*configs)[1].SearchGrounding {
		t.Fatal("expected no search grounding when web search is disabled")
	}
}

func TestAdapter_CreateModel_UnregisteredProvider(t *testing.T) {
	catalog := NewCatalog([]ProviderInfo{{ID: "mistral", Name: "Mistral"}}, []Model{{Provider: "mistral", ID: "m"}})
	a := NewAdapter(NewRegistry(), catalog)

	_, err := a.CreateModel("mistral", "k", Model{Provider: "mistral", ID: "m"}, false, false)
	var providerErr *InvalidProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected InvalidProviderError, got %v", err)
	}
}

func TestAdapter_ConfigureTools(t *testing.T) {
	withSearch, _ := newTestAdapter(noopSearch)
	withoutSearch, _ := newTestAdapter(nil)

	tests := []struct {
		name     string
		adapter  *Adapter
		provider ProviderID
		model    string
		tools    bool
		want     string
	}{
		{"no tool support", withSearch, ProviderOpenAI, "gpt-4.1", false, ""},
		{"native grounding provider", withSearch, ProviderGoogle, "gemini-2.5-flash", true, ""},
		{"native browsing model", withSearch, ProviderOpenAI, "gpt-4o-search-preview", true, "web_search_preview"},
		{"generic web search", withSearch, ProviderGroq, "llama-3.3-70b-versatile", true, WebSearchToolName},
		{"no executor configured", withoutSearch, ProviderOpenAI, "gpt-4.1", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools := tt.adapter.ConfigureTools(tt.provider, tt.model, tt.tools)
			if tt.want == "" {
				if tools != nil {
					t.Fatalf("expected no tools, got %v", tools)
				}
				return
			}
			tool, ok := tools[tt.want]
			if !ok || len(tools) != 1 {
				t.Fatalf("expected only %q, got %v", tt.want, tools)
			}
			if tool.Native != (tt.want != WebSearchToolName) {
				t.Fatalf("unexpected native flag on %q", tt.want)
			}
		})
	}
}

func TestToolSet_NativeAndFunctions(t *testing.T) {
	set := ToolSet{
		"b":                  {Name: "b", Execute: noopSearch},
		"a":                  {Name: "a", Execute: noopSearch},
		"web_search_preview": {Name: "web_search_preview", Native: true},
	}

	native, ok := set.Native()
	if !ok || native.Name != "web_search_preview" {
		t.Fatalf("expected native tool, got %#v", native)
	}
	fns := set.Functions()
	if len(fns) != 2 || fns[0].Name != "a" || fns[1].Name != "b" {
		t.Fatalf("expected sorted function tools, got %#v", fns)
	}
}
