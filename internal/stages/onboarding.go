package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/onboarding"
)

// onboardingStage runs one chat turn: load, step, conditional save, publish.
type onboardingStage struct {
	store     ports.ConversationStore
	publisher ports.EventPublisher
	machine   *onboarding.Machine
	retries   int
	logger    *slog.Logger
}

func (s *onboardingStage) Handle(ctx context.Context, event domain.Event) (ports.Result, error) {
	payload, err := event.Payload()
	if err != nil {
		return ports.Result{}, err
	}
	msg, ok := payload.(*domain.ChatMessageReceived)
	if !ok {
		return ports.Result{}, fmt.Errorf("unexpected payload %T", payload)
	}

	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = ConversationID(event)
	}
	if strings.TrimSpace(msg.Message) == "" {
		return ports.Result{}, fmt.Errorf("chat message for %s: message is required: %w", conversationID, domain.ErrInvalidPayload)
	}

	for attempt := 0; ; attempt++ {
		data, err := s.store.Get(ctx, conversationID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			data = domain.NewClientData(conversationID)
		case err != nil:
			return ports.Result{}, fmt.Errorf("load conversation: %w", err)
		}

		turn, err := s.machine.Step(ctx, data, msg.Message)
		if err != nil {
			return ports.Result{}, err
		}

		err = s.store.Save(ctx, data)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < s.retries {
			s.logger.WarnContext(ctx, "conversation changed concurrently, replaying turn",
				slog.String("conversation_id", conversationID),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return ports.Result{}, fmt.Errorf("save conversation: %w", err)
		}

		if err := publishAll(ctx, s.publisher, turn.Events...); err != nil {
			return ports.Result{}, err
		}

		return ports.Result{ConversationID: conversationID, Message: turn.Reply}, nil
	}
}
