package modelapi

import "context"

const (
	ASSISTANT = "assistant"
	SYSTEM    = "system"
	USER      = "user"
)

type ChatMessage struct {
	Role    string
	Content string
}

// Provider is the single contract every language-model backend implements.
// Implementations handle their own retry and rate limiting; callers handle
// parsing and fallback.
type Provider interface {
	GenerateContent(ctx context.Context, systemPrompt string, history []ChatMessage, userMessage string) (string, error)
}
