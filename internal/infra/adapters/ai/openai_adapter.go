package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"expert-assistant/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var (
	_ adapter.ChatCompletionClient = (*OpenAIAdapter)(nil)
	_ adapter.UsageReporter        = (*OpenAIAdapter)(nil)
	_ adapter.Describer            = (*OpenAIAdapter)(nil)
)

const (
	DefaultOpenAIBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultOpenAIModel   = "qwen-plus"
)

type OpenAIConfig struct {
	Provider  string // metrics label, e.g. "dashscope"
	BaseURL   string
	Model     string
	APIKey    string // used when a call carries no credentials
	MaxTokens int
	Timeout   time.Duration
}

// OpenAIAdapter talks to any OpenAI-compatible Chat Completions endpoint.
// Credentials are applied per request; the SDK's retries are disabled.
type OpenAIAdapter struct {
	client   openai.Client
	provider string
	model    string
	apiKey   string
	maxOut   int
}

func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/") + "/"
	return &OpenAIAdapter{
		client: openai.NewClient(
			option.WithBaseURL(base),
			option.WithMaxRetries(0),
			option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		),
		provider: cfg.Provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		maxOut:   cfg.MaxTokens,
	}
}

func (o *OpenAIAdapter) Provider() string { return o.provider }
func (o *OpenAIAdapter) Model() string    { return o.model }

func (o *OpenAIAdapter) Complete(ctx context.Context, messages []adapter.Message, credentials string) (string, error) {
	reply, _, err := o.CompleteWithUsage(ctx, messages, credentials)
	return reply, err
}

func (o *OpenAIAdapter) CompleteWithUsage(ctx context.Context, messages []adapter.Message, credentials string) (string, adapter.Usage, error) {
	if err := adapter.ValidateMessages(messages); err != nil {
		return "", adapter.Usage{}, err
	}
	key := strings.TrimSpace(credentials)
	if key == "" {
		key = o.apiKey
	}
	if key == "" {
		return "", adapter.Usage{}, missingCredentials(o.provider)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: toOpenAIMessages(messages),
	}
	if o.maxOut > 0 {
		params.MaxTokens = openai.Int(int64(o.maxOut))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params, option.WithAPIKey(key))
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", adapter.Usage{}, classifyStatus(o.provider, apiErr.StatusCode, apiErr.Code, apiErr.Message)
		}
		return "", adapter.Usage{}, classifyTransport(ctx, o.provider, err)
	}

	reply := ""
	for _, c := range resp.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			reply = c.Message.Content
			break
		}
	}
	if reply == "" {
		return "", adapter.Usage{}, classifyTransport(ctx, o.provider, fmt.Errorf("no choice content"))
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return reply, u, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
