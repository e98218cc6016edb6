// Package stages routes pipeline events to the stage that owns them.
package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/onboarding"
)

// IgnoredMessage is the result for event types no stage handles.
const IgnoredMessage = "Event ignored"

// Config wires the orchestrator to its collaborators.
type Config struct {
	Store     ports.ConversationStore
	Publisher ports.EventPublisher
	Machine   *onboarding.Machine

	// EventLog, when set, records every event the orchestrator receives.
	EventLog ports.EventLog

	// MaxConflictRetries bounds how often a chat turn is replayed after a
	// concurrent write. Zero means a single attempt.
	MaxConflictRetries int

	Logger *slog.Logger
	Now    func() time.Time
}

// Orchestrator dispatches events by exact, case-sensitive type.
type Orchestrator struct {
	handlers map[domain.EventType]ports.EventHandler
	eventLog ports.EventLog
	logger   *slog.Logger
	tracer   trace.Tracer
}

var _ ports.EventHandler = (*Orchestrator)(nil)

// New builds the orchestrator with the onboarding, brief, canvass and delivery stages.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("stages: store is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("stages: publisher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Machine == nil {
		cfg.Machine = onboarding.New(onboarding.WithLogger(cfg.Logger), onboarding.WithClock(cfg.Now))
	}

	o := &Orchestrator{
		eventLog: cfg.EventLog,
		logger:   cfg.Logger,
		tracer:   otel.Tracer("github.com/tjfontaine/canvass-pipeline/internal/stages"),
	}
	o.handlers = map[domain.EventType]ports.EventHandler{
		domain.EventChatMessageReceived: &onboardingStage{
			store:     cfg.Store,
			publisher: cfg.Publisher,
			machine:   cfg.Machine,
			retries:   cfg.MaxConflictRetries,
			logger:    cfg.Logger,
		},
		domain.EventClientDataCollected: &briefStage{publisher: cfg.Publisher, now: cfg.Now},
		domain.EventBriefGenerated:      &canvassStage{publisher: cfg.Publisher, now: cfg.Now},
		domain.EventEmailProvided:       &deliveryStage{logger: cfg.Logger},
	}
	return o, nil
}

// Handle routes one event. Unknown types yield IgnoredMessage without error.
func (o *Orchestrator) Handle(ctx context.Context, event domain.Event) (ports.Result, error) {
	ctx, span := o.tracer.Start(ctx, "stages.Handle", trace.WithAttributes(
		attribute.String("event.type", string(event.Type)),
		attribute.String("event.id", event.ID),
		attribute.String("conversation.id", ConversationID(event)),
	))
	defer span.End()

	logger := o.logger.With(
		slog.String("event_type", string(event.Type)),
		slog.String("event_id", event.ID),
		slog.String("subject", event.Subject),
	)

	if o.eventLog != nil {
		if err := o.eventLog.AppendEvent(ctx, event); err != nil {
			logger.WarnContext(ctx, "failed to record event", slog.String("error", err.Error()))
		}
	}

	handler, ok := o.handlers[event.Type]
	if !ok {
		logger.InfoContext(ctx, "event ignored")
		return ports.Result{Message: IgnoredMessage}, nil
	}

	start := time.Now()
	res, err := handler.Handle(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "stage failed",
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return ports.Result{}, fmt.Errorf("handle %s: %w", event.Type, err)
	}

	logger.InfoContext(ctx, "event handled",
		slog.String("conversation_id", res.ConversationID),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// ConversationID extracts the conversation id from an event subject.
func ConversationID(event domain.Event) string {
	return strings.TrimPrefix(event.Subject, "chatbot/")
}

func publishAll(ctx context.Context, publisher ports.EventPublisher, events ...domain.Event) error {
	for _, ev := range events {
		if err := publisher.Publish(ctx, ev); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Type, err)
		}
	}
	return nil
}
