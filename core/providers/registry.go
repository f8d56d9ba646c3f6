package providers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	coreerrors "github.com/adalundhe/duet/core/errors"
)

// New builds the generator selected by cfg.Provider.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case ProviderTypeOpenAI, "":
		return NewOpenAIProvider(cfg.OpenAI)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.Anthropic)
	default:
		return nil, &coreerrors.ConfigurationError{
			Subject: string(cfg.Provider),
			Reason:  "unknown llm provider",
			Known:   []string{string(ProviderTypeOpenAI), string(ProviderTypeAnthropic)},
		}
	}
}

// classify attaches a tier to an SDK error using its HTTP status.
func classify(provider string, err error) error {
	status := 0

	var oaErr *openai.Error
	var anErr *anthropic.Error
	switch {
	case errors.As(err, &oaErr):
		status = oaErr.StatusCode
	case errors.As(err, &anErr):
		status = anErr.StatusCode
	}

	if status == 0 {
		return coreerrors.WrapWithTier(coreerrors.TierTransient, provider+" generate", err)
	}

	tiered := coreerrors.NewTieredError(coreerrors.TierForStatus(status), fmt.Sprintf("%s generate: %s", provider, http.StatusText(status)), err).
		WithStatusCode(status)
	return tiered
}
