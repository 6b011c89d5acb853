package ai

import (
	"context"
	"time"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/ports/adapter"
	"expert-assistant/internal/infra/metrics"
)

var (
	_ adapter.ChatCompletionClient = (*instrumentedClient)(nil)
	_ adapter.UsageReporter        = (*instrumentedClient)(nil)
)

// instrumentedClient records latency, outcome and token usage per
// provider/model. Providers that report no usage get a tiktoken estimate.
type instrumentedClient struct {
	inner   adapter.ChatCompletionClient
	counter TokenCounter
	desc    description
}

func NewInstrumentedClient(inner adapter.ChatCompletionClient, counter TokenCounter) *instrumentedClient {
	if counter == nil {
		counter = ApproxCounter{}
	}
	return &instrumentedClient{inner: inner, counter: counter, desc: describe(inner)}
}

func (c *instrumentedClient) Provider() string { return c.desc.provider }
func (c *instrumentedClient) Model() string    { return c.desc.model }

func (c *instrumentedClient) Complete(ctx context.Context, messages []adapter.Message, credentials string) (string, error) {
	reply, _, err := c.CompleteWithUsage(ctx, messages, credentials)
	return reply, err
}

func (c *instrumentedClient) CompleteWithUsage(ctx context.Context, messages []adapter.Message, credentials string) (string, adapter.Usage, error) {
	start := time.Now()
	var (
		reply string
		usage adapter.Usage
		err   error
	)
	if ur, ok := c.inner.(adapter.UsageReporter); ok {
		reply, usage, err = ur.CompleteWithUsage(ctx, messages, credentials)
	} else {
		reply, err = c.inner.Complete(ctx, messages, credentials)
	}

	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	metrics.ObserveCompletion(c.desc.provider, c.desc.model, outcome, time.Since(start))
	if err != nil {
		return "", adapter.Usage{}, err
	}

	estimated := false
	if usage.TotalTokens == 0 {
		usage.PromptTokens = CountMessages(c.counter, messages)
		usage.CompletionTokens = c.counter.Count(reply)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		estimated = true
	}
	metrics.ObserveTokens(c.desc.provider, c.desc.model, usage.PromptTokens, usage.CompletionTokens, estimated)
	return reply, usage, nil
}

type description struct {
	provider string
	model    string
}

func describe(c adapter.ChatCompletionClient) description {
	if d, ok := c.(adapter.Describer); ok {
		return description{provider: d.Provider(), model: d.Model()}
	}
	return description{provider: "unknown", model: "unknown"}
}
