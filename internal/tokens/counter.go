// Package tokens counts chat tokens and fits transcripts into a prompt budget.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
)

// Per-message overhead for chat models: 3 framing tokens plus 1 for the role,
// and 3 tokens priming the assistant reply.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	replyPriming     = 3
)

// Counter counts tokens for a model.
type Counter interface {
	CountText(text string) int
}

// TiktokenCounter provides exact counts for OpenAI chat models.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

var (
	codecCache = make(map[tokenizer.Encoding]tokenizer.Codec)
	cacheMu    sync.RWMutex
)

// ForModel returns a tiktoken counter for model, falling back to the
// encoding implied by the model family.
func ForModel(model string) (*TiktokenCounter, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(model))); err == nil {
		return &TiktokenCounter{codec: codec}, nil
	}

	encoding := modelToEncoding(model)

	cacheMu.RLock()
	cached, ok := codecCache[encoding]
	cacheMu.RUnlock()
	if ok {
		return &TiktokenCounter{codec: cached}, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	cacheMu.Lock()
	codecCache[encoding] = codec
	cacheMu.Unlock()

	return &TiktokenCounter{codec: codec}, nil
}

// CountText counts tokens for a plain text string.
func (c *TiktokenCounter) CountText(text string) int {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// modelToEncoding maps model names to encodings.
//
// O200kBase: gpt-4o, gpt-4.1, gpt-5, o-series
// Cl100kBase: gpt-4, gpt-3.5-turbo
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// Estimator approximates counts from character length. Used when no codec loads.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

func (e *Estimator) CountText(text string) int {
	return int(float64(len(text)) / e.CharsPerToken)
}

// CountMessages counts a chat request made of a system prompt and messages.
func CountMessages(c Counter, system string, msgs []domain.Message) int {
	total := replyPriming
	if system != "" {
		total += tokensPerMessage + tokensPerRole + c.CountText(system)
	}
	for _, m := range msgs {
		total += messageCost(c, m)
	}
	return total
}

func messageCost(c Counter, m domain.Message) int {
	return tokensPerMessage + tokensPerRole + c.CountText(m.Content)
}

// FitTranscript returns the longest suffix of msgs that, together with the
// system prompt and draft, stays within maxTokens. A non-positive budget
// disables trimming. The newest message is always kept.
func FitTranscript(c Counter, system, draft string, msgs []domain.Message, maxTokens int) []domain.Message {
	if maxTokens <= 0 || len(msgs) == 0 {
		return msgs
	}

	used := CountMessages(c, system, nil)
	if draft != "" {
		used += tokensPerMessage + tokensPerRole + c.CountText(draft)
	}

	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := messageCost(c, msgs[i])
		if used+cost > maxTokens && start < len(msgs) {
			break
		}
		used += cost
		start = i
	}
	return msgs[start:]
}
