// Package direct provides an in-process event publisher.
package direct

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
)

// Publisher implements ports.EventPublisher by handing every event to a
// handler in the calling goroutine. This is the default for single-instance
// deployments: the whole stage chain runs inside the publishing request.
type Publisher struct {
	mu      sync.RWMutex
	handler ports.EventHandler
	logger  *slog.Logger
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a direct publisher. Bind must be called before Publish.
func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger}
}

// Bind sets the handler events are dispatched to. The handler usually
// publishes through this same Publisher, so the two are wired after creation.
func (p *Publisher) Bind(handler ports.EventHandler) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

// Publish dispatches the event synchronously and returns the handler's error.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("direct publisher: no handler bound")
	}

	res, err := handler.Handle(ctx, event)
	if err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "event dispatched",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("result", res.Message),
	)
	return nil
}

// Close is a no-op for direct publisher.
func (p *Publisher) Close() error {
	return nil
}
