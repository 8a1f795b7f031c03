// File: api/schemas/llm.go
package schemas

import "context"

// GenerationOptions tunes a single completion request.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, asks the model for a JSON-only answer.
	MaxTokens       int     `json:"max_tokens"`
}

// GenerationRequest is a complete prompt for the language model.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts the transport to a language model provider.
type LLMClient interface {
	// Generate produces a text completion for the request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Ping checks that the provider is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the client.
	Close() error
}
