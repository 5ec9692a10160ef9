// Provider contract shared by the backends.
//
// Each provider implementation hides:
// - SDK client setup and the API key it was given
// - Conversion between ChatMessage and the SDK's message types
// - How its backend is coaxed into returning JSON plans

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithFormat sends a chat completion request with response format.
	ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error)
}

// splitSystem separates the system prompt from the conversation, for APIs
// that take it as a separate parameter.
func splitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var system string
	rest := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
