// Package providers contains the provider-specific model handles.
package providers

import "aichat/pkg/ai"

// Register adds a factory for every built-in provider to the registry.
func Register(r *ai.Registry) {
	r.Register(ai.ProviderOpenAI, NewOpenAIModel)
	r.Register(ai.ProviderXAI, NewXAIModel)
	r.Register(ai.ProviderGroq, NewGroqModel)
	r.Register(ai.ProviderAnthropic, NewAnthropicModel)
	r.Register(ai.ProviderGoogle, NewGoogleModel)
}

// NewRegistry returns a registry with every built-in provider registered.
func NewRegistry() *ai.Registry {
	r := ai.NewRegistry()
	Register(r)
	return r
}
