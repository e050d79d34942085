// Package llm wraps the language model providers used by both analyzers behind a single
// structured-JSON completion call.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/somnia/internal/config"
)

// ErrNoAPIKey is returned when the configured provider has no API key available.
var ErrNoAPIKey = errors.New("llm: API key is not configured")

// Request is one structured completion request. Schema, when set, constrains the
// model to a JSON object of that shape; Instructions is the fixed system prompt.
type Request struct {
	Instructions string
	Input        string
	SchemaName   string
	Schema       map[string]any
}

// Client produces a JSON document for a request. Implementations make exactly one
// upstream attempt; callers own any degradation policy.
type Client interface {
	CompleteJSON(ctx context.Context, req Request) (string, error)
}

// New returns the client for the configured provider.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("%w (set llm.api_key or $%s)", ErrNoAPIKey, cfg.APIKeyEnv)
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(apiKey, cfg.Model, cfg.BaseURL, cfg.MaxOutputTokens), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, apiKey, cfg.Model, cfg.BaseURL, cfg.MaxOutputTokens)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
