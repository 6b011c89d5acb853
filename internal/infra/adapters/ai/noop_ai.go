package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"expert-assistant/internal/domain/ports/adapter"
)

var (
	_ adapter.ChatCompletionClient = (*NoopAIAdapter)(nil)
	_ adapter.Describer            = (*NoopAIAdapter)(nil)
)

// NoopAIAdapter implements the completion port for local/dev runs.
// It echoes the last user message instead of calling a provider.
type NoopAIAdapter struct {
	delay time.Duration
}

// NewNoopAIAdapter constructs the noop adapter. delay simulates latency.
func NewNoopAIAdapter(delay time.Duration) *NoopAIAdapter {
	return &NoopAIAdapter{delay: delay}
}

func (a *NoopAIAdapter) Provider() string { return "noop" }
func (a *NoopAIAdapter) Model() string    { return "noop-ai-model" }

func (a *NoopAIAdapter) Complete(ctx context.Context, messages []adapter.Message, credentials string) (string, error) {
	if err := adapter.ValidateMessages(messages); err != nil {
		return "", err
	}
	// Simulate processing and respect ctx
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	last := messages[len(messages)-1]
	if last.Role != "user" {
		return "This is a noop AI response.", nil
	}
	return fmt.Sprintf("[noop] you said: %s", strings.TrimSpace(last.Content)), nil
}
