package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"aichat/pkg/ai"
	"aichat/pkg/generation"
)

// Error names recorded on the generation record.
const (
	ErrNameEmptyAPIKey         = "EmptyAPIKey"
	ErrNameInvalidModel        = "InvalidModel"
	ErrNameInvalidProvider     = "InvalidProvider"
	ErrNameRequestError        = "RequestError"
	ErrNameGenerationCancelled = "GenerationCancelled"
	ErrNameUnknown             = "UnknownError"
)

const defaultErrorText = "**Something went wrong.**\n\nAn unexpected error occurred while generating the response. Please try again."

// Normalizer renders errors into user-facing markdown.
type Normalizer struct {
	catalog *ai.Catalog
}

// NewNormalizer creates a Normalizer that looks provider names up in catalog.
func NewNormalizer(catalog *ai.Catalog) *Normalizer {
	return &Normalizer{catalog: catalog}
}

// Name classifies err into the closed error taxonomy.
func (n *Normalizer) Name(err error) string {
	var keyErr *ai.EmptyAPIKeyError
	var modelErr *ai.InvalidModelError
	var providerErr *ai.InvalidProviderError
	var reqErr *ai.RequestError

	switch {
	case errors.Is(err, ai.ErrGenerationCancelled):
		return ErrNameGenerationCancelled
	case errors.As(err, &keyErr):
		return ErrNameEmptyAPIKey
	case errors.As(err, &modelErr):
		return ErrNameInvalidModel
	case errors.As(err, &providerErr):
		return ErrNameInvalidProvider
	case errors.As(err, &reqErr):
		return ErrNameRequestError
	default:
		return ErrNameUnknown
	}
}

// Render returns the markdown body for err. provider is the provider of
// the generation, used when the error does not name one itself.
func (n *Normalizer) Render(err error, provider ai.ProviderID) string {
	var keyErr *ai.EmptyAPIKeyError
	var modelErr *ai.InvalidModelError
	var providerErr *ai.InvalidProviderError
	var reqErr *ai.RequestError

	switch {
	case errors.Is(err, ai.ErrGenerationCancelled):
		return "*Generation cancelled.*"
	case errors.As(err, &keyErr):
		return n.renderMissingKey(n.provider(keyErr.Provider, provider))
	case errors.As(err, &modelErr):
		return fmt.Sprintf("**Unknown model `%s`.**\n\nThis model is not available. Switch to a different model and try again.", modelErr.ID)
	case errors.As(err, &providerErr):
		return fmt.Sprintf("**Unknown provider `%s`.**\n\nThis provider is not supported. Switch to a model from a different provider and try again.", providerErr.ID)
	case errors.As(err, &reqErr):
		return n.renderRequestError(reqErr, n.provider(reqErr.Provider, provider))
	case errors.Is(err, generation.ErrGenerationExists):
		return "**A response is already being generated.**\n\nWait for it to finish or cancel it, then try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "**The request timed out.**\n\nThe provider took too long to respond. Please try again."
	default:
		return defaultErrorText
	}
}

func (n *Normalizer) provider(primary, fallback ai.ProviderID) ai.ProviderInfo {
	id := primary
	if id == "" {
		id = fallback
	}
	if n.catalog != nil {
		if info, err := n.catalog.Provider(id); err == nil {
			return info
		}
	}
	name := string(id)
	if name == "" {
		name = "the provider"
	}
	return ai.ProviderInfo{ID: id, Name: name}
}

func (n *Normalizer) renderMissingKey(info ai.ProviderInfo) string {
	text := fmt.Sprintf("**No API key for %s.**\n\nAdd your %s API key in settings to use this model.", info.Name, info.Name)
	if info.KeyURL != "" {
		text += fmt.Sprintf(" You can create one at %s.", info.KeyURL)
	}
	return text
}

func (n *Normalizer) renderRequestError(err *ai.RequestError, info ai.ProviderInfo) string {
	switch err.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		text := fmt.Sprintf("**%s rejected the API key.**\n\nCheck that your %s API key is valid and has access to this model.", info.Name, info.Name)
		if info.KeyURL != "" {
			text += fmt.Sprintf(" You can manage keys at %s.", info.KeyURL)
		}
		return text
	case http.StatusNotFound:
		return fmt.Sprintf("**Model not found.**\n\n%s could not find the requested model. It may not be available for your account; try a different model.", info.Name)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("**Rate limited by %s.**\n\nToo many requests or the quota is exhausted. Wait a moment and try again.", info.Name)
	default:
		return defaultErrorText
	}
}
