// Package ports defines the core interfaces for the pipeline.
package ports

import (
	"context"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// EventPublisher publishes pipeline events.
// Implementations: direct in-process dispatch (default), Kafka, NATS.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}

// EventHandler consumes one event. The stage orchestrator is the production handler.
type EventHandler interface {
	Handle(ctx context.Context, event domain.Event) (Result, error)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event domain.Event) (Result, error)

func (f EventHandlerFunc) Handle(ctx context.Context, event domain.Event) (Result, error) {
	return f(ctx, event)
}

// Result is what a stage reports back for an event it handled.
type Result struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
}

// EventSubscriber delivers events from a transport to a handler until ctx is done.
type EventSubscriber interface {
	Run(ctx context.Context, handler EventHandler) error
	Close() error
}

// Enricher returns a short contextual snippet for free text.
// Callers treat every error as non-fatal.
type Enricher interface {
	Enrich(ctx context.Context, query string) (string, error)
}

// Phraser rewrites a drafted assistant reply in the context of the transcript.
// Callers treat every error as non-fatal.
type Phraser interface {
	Phrase(ctx context.Context, transcript []domain.Message, draft string) (string, error)
}
