package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// LLMService defines the interface for language model operations.
// Implementations route to Gemini or Claude based on the configured model.
type LLMService interface {
	// Complete generates a response for a single system+user prompt pair.
	Complete(ctx context.Context, system, prompt string) (string, error)

	// Chat generates a completion over the full conversation history.
	Chat(ctx context.Context, messages []Message) (string, error)

	// CompleteJSON generates a response constrained to JSON. An optional
	// JSON schema narrows the output shape on providers that support
	// structured output. Markdown code fences are stripped from providers
	// that wrap their output.
	CompleteJSON(ctx context.Context, system, prompt string, schema map[string]interface{}) (string, error)

	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch generates embedding vectors for multiple texts in a
	// single provider call, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// ModelName returns the active generation model identifier.
	ModelName() string

	// IsAvailable reports whether the provider is configured with a key.
	IsAvailable(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}
