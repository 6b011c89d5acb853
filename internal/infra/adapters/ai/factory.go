package ai

import (
	"fmt"

	"expert-assistant/internal/config"
	"expert-assistant/internal/domain/ports/adapter"
)

// NewFromConfig builds the completion client chain: provider adapter, then
// metrics, then the global concurrency cap.
func NewFromConfig(cfg config.AIConfig) (adapter.ChatCompletionClient, error) {
	var (
		base    adapter.ChatCompletionClient
		counter TokenCounter = ApproxCounter{}
	)
	switch cfg.Provider {
	case "openai":
		o := NewOpenAIAdapter(OpenAIConfig{
			Provider:  providerLabel(cfg.BaseURL),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
		base = o
		counter = NewTokenCounter(o.Model())
	case "gemini":
		base = NewGeminiAdapter(GeminiConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case "noop":
		base = NewNoopAIAdapter(cfg.NoopDelay)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	return NewLimitedClient(NewInstrumentedClient(base, counter), cfg.ConcurrentLimit), nil
}

func providerLabel(baseURL string) string {
	if baseURL == "" || baseURL == DefaultOpenAIBaseURL {
		return "dashscope"
	}
	return "openai"
}
