package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// openaiClient serves both the direct OpenAI API and OpenRouter's
// OpenAI-compatible aggregator; the two differ only in base URL.
type openaiClient struct {
	name     string
	provider string
	client   *openai.Client
	backend  config.LLMBackend
}

func newOpenAIClient(name string, backend config.LLMBackend) *openaiClient {
	cfg := openai.DefaultConfig(backend.APIKey)
	if backend.BaseURL != "" {
		cfg.BaseURL = backend.BaseURL
	}
	return &openaiClient{
		name:     name,
		provider: "openai",
		client:   openai.NewClientWithConfig(cfg),
		backend:  backend,
	}
}

const openRouterBaseURL = "https://openrouter.ai/api/v1"

func newOpenRouterClient(name string, backend config.LLMBackend) *openaiClient {
	cfg := openai.DefaultConfig(backend.APIKey)
	cfg.BaseURL = openRouterBaseURL
	if backend.BaseURL != "" {
		cfg.BaseURL = backend.BaseURL
	}
	return &openaiClient{
		name:     name,
		provider: "openrouter",
		client:   openai.NewClientWithConfig(cfg),
		backend:  backend,
	}
}

func (c *openaiClient) Name() string { return c.name }

func (c *openaiClient) Generate(ctx context.Context, req models.PromptRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout(c.backend))
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model:       c.backend.Model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   resolveMaxTokens(req, c.backend),
		Temperature: float32(resolveTemperature(req, c.backend)),
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{
			Reason:   ReasonServerError,
			Provider: c.provider,
			Model:    c.backend.Model,
			Message:  "response contained no choices",
		}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *openaiClient) wrapError(err error) error {
	wrapped := NewProviderError(c.provider, c.backend.Model, err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped.WithStatus(apiErr.HTTPStatusCode)
	}
	return wrapped
}

func convertMessages(messages []models.ChatMessage) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return converted
}
