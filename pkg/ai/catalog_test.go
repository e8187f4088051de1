package ai

import (
	"errors"
	"testing"
)

func TestDefaultCatalog_Providers(t *testing.T) {
	c := DefaultCatalog()

	providers := c.Providers()
	if len(providers) != 5 {
		t.Fatalf("expected 5 providers, got %d", len(providers))
	}
	for _, p := range providers {
		if p.Name == "" || p.KeyURL == "" {
			t.Fatalf("provider %s is missing name or key url", p.ID)
		}
		if len(c.Models(p.ID)) == 0 {
			t.Fatalf("provider %s has no models", p.ID)
		}
	}
}

func TestCatalog_Model(t *testing.T) {
	c := DefaultCatalog()

	m, err := c.Model("deepseek-r1-distill-llama-70b")
	if err != nil {
		t.Fatalf("Model() error: %v", err)
	}
	if m.Provider != ProviderGroq || !m.Capabilities.Thinking || m.Capabilities.Tool {
		t.Fatalf("unexpected model: %#v", m)
	}

	_, err = c.Model("gpt-9000")
	var modelErr *InvalidModelError
	if !errors.As(err, &modelErr) || modelErr.ID != "gpt-9000" {
		t.Fatalf("expected InvalidModelError, got %v", err)
	}
}

func TestCatalog_Provider(t *testing.T) {
	c := DefaultCatalog()

	info, err := c.Provider(ProviderGoogle)
	if err != nil {
		t.Fatalf("Provider() error: %v", err)
	}
	if !info.NativeSearch || !info.NativeReasoning {
		t.Fatalf("expected google to have native search and reasoning, got %#v", info)
	}

	_, err = c.Provider("openrouter")
	var providerErr *InvalidProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected InvalidProviderError, got %v", err)
	}
}

func TestCatalog_Capabilities(t *testing.T) {
	c := NewCatalog(
		[]ProviderInfo{{ID: "a"}, {ID: "b"}},
		[]Model{
			{Provider: "a", ID: "a-1", Capabilities: Capabilities{Thinking: true}},
			{Provider: "b", ID: "b-1", Capabilities: Capabilities{Tool: true}},
		},
	)

	if !c.SupportsThinking("a") || c.SupportsThinking("b") {
		t.Fatal("unexpected thinking support")
	}
	if c.SupportsWebSearch("a") || !c.SupportsWebSearch("b") {
		t.Fatal("unexpected web search support")
	}
	if c.SupportsThinking("missing") {
		t.Fatal("expected no support for unknown provider")
	}
}

func TestCatalog_ModelsIsACopy(t *testing.T) {
	c := DefaultCatalog()

	models := c.Models(ProviderOpenAI)
	models[0].ID = "mutated"

	if c.Models(ProviderOpenAI)[0].ID == "mutated" {
		t.Fatal("expected Models to return a copy")
	}
}

func TestCatalog_UnknownProviderModel(t *testing.T) {
	c := NewCatalog(nil, []Model{{Provider: "ghost", ID: "g-1"}})

	m, err := c.Model("g-1")
	if err != nil {
		t.Fatalf("Model() error: %v", err)
	}
	if _, err := c.Provider(m.Provider); err == nil {
		t.Fatal("expected provider lookup to fail")
	}
}
