package models

// ChatMessage is a single role/content turn in a chat prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptRequest is one logical LLM call produced by a method strategy.
// Requests carry their own sampling overrides so a strategy can ask for
// higher-temperature sampling without touching backend defaults.
type PromptRequest struct {
	Messages []ChatMessage `json:"messages"`

	// MaxTokens overrides the backend default when > 0.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature overrides the backend default when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`
}
