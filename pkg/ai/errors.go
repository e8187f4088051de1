package ai

import (
	"errors"
	"fmt"
)

// ErrGenerationCancelled is returned when a user cancelled an in-flight
// generation.
var ErrGenerationCancelled = errors.New("generation cancelled")

// EmptyAPIKeyError reports that no API key is configured for a provider.
type EmptyAPIKeyError struct {
	Provider ProviderID
}

func (e *EmptyAPIKeyError) Error() string {
	return fmt.Sprintf("no api key configured for provider %s", e.Provider)
}

// InvalidModelError reports a model id missing from the catalog.
type InvalidModelError struct {
	ID string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("invalid model: %s", e.ID)
}

// InvalidProviderError reports a provider id missing from the catalog or
// the provider registry.
type InvalidProviderError struct {
	ID string
}

func (e *InvalidProviderError) Error() string {
	return fmt.Sprintf("invalid provider: %s", e.ID)
}

// RequestError is an upstream HTTP failure from a provider.
type RequestError struct {
	Provider   ProviderID
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s request failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed (status %d)", e.Provider, e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
