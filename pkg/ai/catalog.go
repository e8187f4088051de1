package ai

import (
	"sort"
	"sync"
)

// ProviderID identifies a supported LLM vendor.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGoogle    ProviderID = "google"
	ProviderXAI       ProviderID = "xai"
	ProviderGroq      ProviderID = "groq"
)

// ProviderInfo describes a provider and the quirks the prompt and stream
// layers need to know about.
type ProviderInfo struct {
	ID          ProviderID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	// KeyURL is where a user obtains an API key.
	KeyURL string `json:"key_url"`

	// NativeReasoning is true when reasoning arrives on its own channel
	// instead of inside <think> tags in the text.
	NativeReasoning bool `json:"native_reasoning"`
	// NativeSearch is true when search grounding is a request flag rather
	// than a tool.
	NativeSearch bool `json:"native_search"`
	// SearchSystemAddendum sends the legacy search instructions as a
	// second system message.
	SearchSystemAddendum bool `json:"-"`
	// InlineToolSuffix appends tool-use instructions to the user turn.
	InlineToolSuffix bool `json:"-"`
}

// Capabilities are the feature flags of a model.
type Capabilities struct {
	Thinking bool `json:"thinking"`
	Tool     bool `json:"tool"`
}

// Modalities lists the media kinds a model accepts or produces.
type Modalities struct {
	Text  bool `json:"text"`
	Image bool `json:"image"`
	Audio bool `json:"audio,omitempty"`
	Video bool `json:"video,omitempty"`
}

// ContextWindow describes model limits.
type ContextWindow struct {
	Window int    `json:"window,omitempty"`
	Input  int    `json:"input,omitempty"`
	Output int    `json:"output,omitempty"`
	Unit   string `json:"unit"`
}

// Model is an immutable catalog entry.
type Model struct {
	Provider     ProviderID    `json:"provider"`
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Capabilities Capabilities  `json:"capabilities"`
	Input        Modalities    `json:"input"`
	Output       Modalities    `json:"output"`
	Context      ContextWindow `json:"context"`
}

// Catalog is a read-only registry of providers and their models.
type Catalog struct {
	providers map[ProviderID]ProviderInfo
	models    map[string]Model
	byProv    map[ProviderID][]Model
}

// NewCatalog builds a catalog. Models for unknown providers are kept; the
// lookup of their provider fails later with InvalidProviderError.
func NewCatalog(providers []ProviderInfo, models []Model) *Catalog {
	c := &Catalog{
		providers: make(map[ProviderID]ProviderInfo, len(providers)),
		models:    make(map[string]Model, len(models)),
		byProv:    make(map[ProviderID][]Model),
	}
	for _, p := range providers {
		c.providers[p.ID] = p
	}
	for _, m := range models {
		c.models[m.ID] = m
		c.byProv[m.Provider] = append(c.byProv[m.Provider], m)
	}
	return c
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = NewCatalog(builtinProviders, builtinModels)
	})
	return defaultCatalog
}

// Model looks up a model by id.
func (c *Catalog) Model(id string) (Model, error) {
	m, ok := c.models[id]
	if !ok {
		return Model{}, &InvalidModelError{ID: id}
	}
	return m, nil
}

// Provider looks up provider metadata by id.
func (c *Catalog) Provider(id ProviderID) (ProviderInfo, error) {
	p, ok := c.providers[id]
	if !ok {
		return ProviderInfo{}, &InvalidProviderError{ID: string(id)}
	}
	return p, nil
}

// Models returns the models of a provider in catalog order.
func (c *Catalog) Models(provider ProviderID) []Model {
	models := c.byProv[provider]
	out := make([]Model, len(models))
	copy(out, models)
	return out
}

// Providers returns all providers sorted by id.
func (c *Catalog) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SupportsThinking reports whether any model of the provider can reason.
func (c *Catalog) SupportsThinking(provider ProviderID) bool {
	for _, m := range c.byProv[provider] {
		if m.Capabilities.Thinking {
			return true
		}
	}
	return false
}

// SupportsWebSearch reports whether any model of the provider can use tools.
func (c *Catalog) SupportsWebSearch(provider ProviderID) bool {
	for _, m := range c.byProv[provider] {
		if m.Capabilities.Tool {
			return true
		}
	}
	return false
}
