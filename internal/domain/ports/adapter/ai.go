package adapter

import (
	"context"

	"expert-assistant/internal/domain"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatCompletionClient is the port for one completion round trip.
// Implementations must not retry, log or keep per-call state. Failures are
// classified with the domain taxonomy (ErrAuthentication, ErrNetwork,
// ErrUpstream, ErrMalformedResponse, ErrValidation).
type ChatCompletionClient interface {
	Complete(ctx context.Context, messages []Message, credentials string) (string, error)
}

// UsageReporter is implemented by clients whose provider reports token usage.
type UsageReporter interface {
	CompleteWithUsage(ctx context.Context, messages []Message, credentials string) (string, Usage, error)
}

// Describer names the provider and model behind a client, for metrics.
type Describer interface {
	Provider() string
	Model() string
}

// ValidateMessages enforces the input contract shared by every client.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return domain.Validationf("no messages")
	}
	for i, m := range messages {
		if m.Role == "system" && i != 0 {
			return domain.Validationf("system message must be first (found at %d)", i)
		}
	}
	return nil
}

// SplitSystem returns the leading system prompt (if any) and the rest.
func SplitSystem(messages []Message) (string, []Message) {
	if len(messages) > 0 && messages[0].Role == "system" {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}
