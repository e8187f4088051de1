package ai

import (
	"log/slog"
	"time"
)

// ProviderSettings are per-provider transport defaults from config.
type ProviderSettings struct {
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float64
}

// Adapter turns a provider id, key and model into a callable handle and
// decides which tools the handle is offered.
type Adapter struct {
	registry  *Registry
	catalog   *Catalog
	settings  map[ProviderID]ProviderSettings
	webSearch ToolExecutor
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithProviderSettings sets transport defaults for one provider.
func WithProviderSettings(id ProviderID, s ProviderSettings) AdapterOption {
	return func(a *Adapter) {
		a.settings[id] = s
	}
}

// WithWebSearch sets the executor behind the generic web search tool.
func WithWebSearch(exec ToolExecutor) AdapterOption {
	return func(a *Adapter) {
		a.webSearch = exec
	}
}

// NewAdapter creates an Adapter over an explicit registry and catalog.
func NewAdapter(registry *Registry, catalog *Catalog, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		registry: registry,
		catalog:  catalog,
		settings: make(map[ProviderID]ProviderSettings),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateModel builds the model handle for a generation. Native search
// grounding is requested for providers that expose it as a flag. Models
// that think inside <think> tags are wrapped with reasoning extraction.
func (a *Adapter) CreateModel(providerID ProviderID, apiKey string, model Model, hasToolSupport, enableWebSearch bool) (LanguageModel, error) {
	info, err := a.catalog.Provider(providerID)
	if err != nil {
		return nil, err
	}
	if !a.registry.IsRegistered(providerID) {
		return nil, &InvalidProviderError{ID: string(providerID)}
	}

	settings := a.settings[providerID]
	cfg := ProviderConfig{
		Provider:        providerID,
		APIKey:          apiKey,
		Model:           model.ID,
		BaseURL:         settings.BaseURL,
		Timeout:         settings.Timeout,
		MaxTokens:       settings.MaxTokens,
		Temperature:     settings.Temperature,
		Reasoning:       model.Capabilities.Thinking && info.NativeReasoning,
		SearchGrounding: info.NativeSearch && hasToolSupport && enableWebSearch,
	}

	handle, err := a.registry.New(cfg)
	if err != nil {
		return nil, err
	}

	if model.Capabilities.Thinking && !info.NativeReasoning {
		handle = WithReasoningExtraction(handle)
	}

	slog.Debug("adapter_model_ready",
		"provider", providerID,
		"model", model.ID,
		"reasoning", cfg.Reasoning,
		"search_grounding", cfg.SearchGrounding,
	)
	return handle, nil
}

// ConfigureTools returns the tools offered to the model, or nil when the
// model gets none. Providers with native search grounding get no tool
// since grounding is not exposed as one.
func (a *Adapter) ConfigureTools(providerID ProviderID, modelID string, hasToolSupport bool) ToolSet {
	if !hasToolSupport {
		return nil
	}
	if info, err := a.catalog.Provider(providerID); err == nil && info.NativeSearch {
		return nil
	}
	if tool, ok := matchNativeBrowsing(providerID, modelID); ok {
		return ToolSet{tool.Name: tool}
	}
	if a.webSearch == nil {
		slog.Debug("adapter_web_search_unavailable", "provider", providerID, "model", modelID)
		return nil
	}
	return ToolSet{WebSearchToolName: webSearchTool(a.webSearch)}
}
