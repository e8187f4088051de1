package ai

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

// ProviderConfig holds everything a factory needs to build a model handle.
type ProviderConfig struct {
	Provider ProviderID
	APIKey   string
	Model    string

	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float64

	// Reasoning asks the provider to emit its native reasoning channel.
	Reasoning bool
	// SearchGrounding enables native search for providers that expose it
	// as a request flag instead of a tool.
	SearchGrounding bool

	HTTPClient *http.Client
}

// ProviderFactory creates a LanguageModel from config.
type ProviderFactory func(cfg ProviderConfig) (LanguageModel, error)

// Registry maps provider ids to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[ProviderID]ProviderFactory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[ProviderID]ProviderFactory),
	}
}

// Register adds or replaces the factory for a provider.
func (r *Registry) Register(id ProviderID, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// New builds a model handle with the registered factory.
func (r *Registry) New(cfg ProviderConfig) (LanguageModel, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()

	if !ok {
		return nil, &InvalidProviderError{ID: string(cfg.Provider)}
	}
	return factory(cfg)
}

// IsRegistered checks if a provider has a factory.
func (r *Registry) IsRegistered(id ProviderID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// Providers returns the registered provider ids, sorted.
func (r *Registry) Providers() []ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ProviderID, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
