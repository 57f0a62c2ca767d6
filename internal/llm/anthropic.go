package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// anthropicClient issues completions against the Anthropic Messages API.
// Anthropic keeps the system prompt separate from the message list, so
// system-role messages are split out during conversion.
type anthropicClient struct {
	name    string
	client  anthropic.Client
	backend config.LLMBackend
}

func newAnthropicClient(name string, backend config.LLMBackend) *anthropicClient {
	options := []option.RequestOption{option.WithAPIKey(backend.APIKey)}
	if strings.TrimSpace(backend.BaseURL) != "" {
		options = append(options, option.WithBaseURL(backend.BaseURL))
	}
	return &anthropicClient{
		name:    name,
		client:  anthropic.NewClient(options...),
		backend: backend,
	}
}

func (c *anthropicClient) Name() string { return c.name }

func (c *anthropicClient) Generate(ctx context.Context, req models.PromptRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout(c.backend))
	defer cancel()

	system, messages := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.backend.Model),
		Messages:    messages,
		MaxTokens:   int64(resolveMaxTokens(req, c.backend)),
		Temperature: anthropic.Float(resolveTemperature(req, c.backend)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", NewProviderError("anthropic", c.backend.Model, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &ProviderError{
			Reason:   ReasonServerError,
			Provider: "anthropic",
			Model:    c.backend.Model,
			Message:  "response contained no text blocks",
		}
	}
	return text, nil
}

func splitSystem(messages []models.ChatMessage) (string, []anthropic.MessageParam) {
	var system []string
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return strings.Join(system, "\n"), converted
}
