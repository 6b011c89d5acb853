package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"expert-assistant/internal/domain/ports/adapter"
)

// TokenCounter estimates how many tokens a text costs.
type TokenCounter interface {
	Count(text string) int
}

// ApproxCounter is the byte-length heuristic used when no encoding is available.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

type tiktokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

// NewTokenCounter returns a tiktoken-backed counter for model. The encoding is
// loaded on first use; models tiktoken doesn't know use cl100k_base, and if no
// encoding can be loaded the approximation is used.
func NewTokenCounter(model string) TokenCounter {
	return &tiktokenCounter{model: model}
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return ApproxCounter{}.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessages estimates prompt tokens for a message list, including the
// small per-message framing overhead of chat formats.
func CountMessages(c TokenCounter, messages []adapter.Message) int {
	const perMessage = 4
	n := 0
	for _, m := range messages {
		n += perMessage + c.Count(m.Content)
	}
	return n
}
