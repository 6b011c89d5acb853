package ai

import (
	"context"

	"expert-assistant/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ChatCompletionClient = (*limitedClient)(nil)

// limitedClient caps concurrent completions across all sessions. Waiting for
// a slot honours ctx.
type limitedClient struct {
	inner adapter.ChatCompletionClient
	sem   chan struct{}
}

func NewLimitedClient(inner adapter.ChatCompletionClient, maxConcurrent int) adapter.ChatCompletionClient {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedClient{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedClient) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedClient) Complete(ctx context.Context, messages []adapter.Message, credentials string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, messages, credentials)
}

func (l *limitedClient) CompleteWithUsage(ctx context.Context, messages []adapter.Message, credentials string) (string, adapter.Usage, error) {
	if err := l.acquire(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	defer func() { <-l.sem }()
	if ur, ok := l.inner.(adapter.UsageReporter); ok {
		return ur.CompleteWithUsage(ctx, messages, credentials)
	}
	reply, err := l.inner.Complete(ctx, messages, credentials)
	return reply, adapter.Usage{}, err
}

func (l *limitedClient) Provider() string { return describe(l.inner).provider }
func (l *limitedClient) Model() string    { return describe(l.inner).model }
