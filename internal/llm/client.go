// Package llm provides a provider-agnostic client for the LLM backends used
// by reformulation methods. Backends are selected by identifier in the
// experiment configuration; three providers are supported: OpenAI's API,
// OpenRouter's aggregator (OpenAI-compatible), and Anthropic's API.
//
// Clients issue single chat completions with per-call timeouts. Retry logic
// lives in the reformulation engine, which consults the error classification
// in this package to decide retryability.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// Client issues one chat completion per call against a fixed backend.
// Implementations are safe for concurrent use.
type Client interface {
	// Generate sends the prompt and returns the completion text.
	// Failures are *ProviderError values carrying a Reason that
	// classifies them as transient or permanent.
	Generate(ctx context.Context, req models.PromptRequest) (string, error)

	// Name returns the backend identifier this client serves.
	Name() string
}

// defaults applied when the backend config leaves fields unset.
const (
	defaultMaxTokens = 256
	defaultTimeout   = 2 * time.Minute
)

// New constructs a client for the named backend.
func New(name string, backend config.LLMBackend) (Client, error) {
	switch backend.Provider {
	case "openai":
		return newOpenAIClient(name, backend), nil
	case "openrouter":
		return newOpenRouterClient(name, backend), nil
	case "anthropic":
		return newAnthropicClient(name, backend), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q for backend %q", backend.Provider, name)
	}
}

// callTimeout resolves the per-call timeout for a backend.
func callTimeout(backend config.LLMBackend) time.Duration {
	if backend.Timeout > 0 {
		return backend.Timeout
	}
	return defaultTimeout
}

// resolveMaxTokens applies the request override, then the backend default.
func resolveMaxTokens(req models.PromptRequest, backend config.LLMBackend) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if backend.MaxTokens > 0 {
		return backend.MaxTokens
	}
	return defaultMaxTokens
}

// resolveTemperature applies the request override, then the backend default.
func resolveTemperature(req models.PromptRequest, backend config.LLMBackend) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return backend.Temperature
}
