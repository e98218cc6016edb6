// Package phrasing polishes drafted assistant replies with a chat completion model.
package phrasing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tjfontaine/canvass-pipeline/internal/backend/openai"
	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
)

// ErrEmptyCompletion is returned when the model produced no usable text.
var ErrEmptyCompletion = errors.New("phrasing: empty completion")

// ChatCompleter is the subset of the OpenAI client the phraser needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
}

// Phraser sends persona + transcript + draft and returns the model's rewrite.
type Phraser struct {
	client  ChatCompleter
	model   string
	persona string
}

var _ ports.Phraser = (*Phraser)(nil)

// New creates a Phraser for model with the given system persona.
func New(client ChatCompleter, model, persona string) *Phraser {
	return &Phraser{client: client, model: model, persona: persona}
}

// Phrase implements ports.Phraser.
func (p *Phraser) Phrase(ctx context.Context, transcript []domain.Message, draft string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, &openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: BuildMessages(p.persona, transcript, draft),
	})
	if err != nil {
		return "", fmt.Errorf("phrasing: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// BuildMessages lays out the prompt: persona, the transcript in order, then the draft reply.
func BuildMessages(persona string, transcript []domain.Message, draft string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(transcript)+2)
	if persona != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(domain.RoleSystem), Content: persona})
	}
	for _, m := range transcript {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: string(domain.RoleAssistant), Content: draft})
	return msgs
}
