// File: .\internal\infra\adapters\ai\gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"expert-assistant/internal/domain/ports/adapter"
)

var (
	_ adapter.ChatCompletionClient = (*GeminiAdapter)(nil)
	_ adapter.UsageReporter        = (*GeminiAdapter)(nil)
	_ adapter.Describer            = (*GeminiAdapter)(nil)
)

const DefaultGeminiModel = "gemini-2.0-flash"

type GeminiConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// GeminiAdapter uses the official SDK. A client is built per call because the
// API key travels with the request.
type GeminiAdapter struct {
	baseURL string
	model   string
	apiKey  string
	maxOut  int
	http    *http.Client
}

func NewGeminiAdapter(cfg GeminiConfig) *GeminiAdapter {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiAdapter{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		maxOut:  cfg.MaxTokens,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *GeminiAdapter) Provider() string { return "gemini" }
func (g *GeminiAdapter) Model() string    { return g.model }

func (g *GeminiAdapter) Complete(ctx context.Context, messages []adapter.Message, credentials string) (string, error) {
	reply, _, err := g.CompleteWithUsage(ctx, messages, credentials)
	return reply, err
}

func (g *GeminiAdapter) CompleteWithUsage(ctx context.Context, messages []adapter.Message, credentials string) (string, adapter.Usage, error) {
	if err := adapter.ValidateMessages(messages); err != nil {
		return "", adapter.Usage{}, err
	}
	key := strings.TrimSpace(credentials)
	if key == "" {
		key = g.apiKey
	}
	if key == "" {
		return "", adapter.Usage{}, missingCredentials("gemini")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.http,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: g.baseURL,
		},
	})
	if err != nil {
		return "", adapter.Usage{}, classifyTransport(ctx, "gemini", err)
	}

	system, rest := adapter.SplitSystem(messages)
	cfg := &genai.GenerateContentConfig{}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, toGenAIHistory(rest), cfg)
	if err != nil {
		return "", adapter.Usage{}, classifyGeminiError(ctx, err)
	}

	// Extract text
	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && p.Text != "" {
				text += p.Text
			}
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", adapter.Usage{}, classifyTransport(ctx, "gemini", errors.New("no candidate text"))
	}
	// Usage (if present)
	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return text, u, nil
}

func classifyGeminiError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyGeminiStatus(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyGeminiStatus(*apiErrPtr)
	}
	return classifyTransport(ctx, "gemini", err)
}

func classifyGeminiStatus(e genai.APIError) error {
	status := e.Code
	// Gemini answers a bad key with 400 INVALID_ARGUMENT.
	if status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "api key") {
		status = http.StatusUnauthorized
	}
	if e.Status == "UNAUTHENTICATED" || e.Status == "PERMISSION_DENIED" {
		status = http.StatusUnauthorized
	}
	return classifyStatus("gemini", status, e.Status, e.Message)
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if strings.EqualFold(m.Role, "assistant") {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}
