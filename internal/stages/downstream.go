package stages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
)

const (
	BriefGeneratedMessage   = "Brief generated"
	CanvassGeneratedMessage = "Canvass generated, please provide an email for the PDF report"
	DeliveredMessage        = "Thank you for using August Says! Your canvass report has been sent. Goodbye!"
)

// canvassTimeLayout renders the generation time in UTC with a literal Z.
const canvassTimeLayout = "2006-01-02T15:04:05Z"

type briefStage struct {
	publisher ports.EventPublisher
	now       func() time.Time
}

func (s *briefStage) Handle(ctx context.Context, event domain.Event) (ports.Result, error) {
	payload, err := event.Payload()
	if err != nil {
		return ports.Result{}, err
	}
	collected, ok := payload.(*domain.ClientDataCollected)
	if !ok {
		return ports.Result{}, fmt.Errorf("unexpected payload %T", payload)
	}

	id := collected.ConversationID
	if id == "" {
		id = ConversationID(event)
	}

	ev, err := domain.NewEvent(id, &domain.BriefGenerated{
		ConversationID: id,
		Brief:          Brief(&collected.ClientData),
	}, s.now())
	if err != nil {
		return ports.Result{}, err
	}
	if err := publishAll(ctx, s.publisher, ev); err != nil {
		return ports.Result{}, err
	}

	return ports.Result{ConversationID: id, Message: BriefGeneratedMessage}, nil
}

// Brief renders the client brief from collected data.
func Brief(c *domain.ClientData) string {
	return fmt.Sprintf("Client Brief:\n- Company: %s\n- Role: %s\n- Audience: %s\n- Priorities: %s\n- Uncertainties: %s",
		deref(c.Company), deref(c.Role), deref(c.Audience), deref(c.Themes), deref(c.Uncertainties))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type canvassStage struct {
	publisher ports.EventPublisher
	now       func() time.Time
}

func (s *canvassStage) Handle(ctx context.Context, event domain.Event) (ports.Result, error) {
	payload, err := event.Payload()
	if err != nil {
		return ports.Result{}, err
	}
	brief, ok := payload.(*domain.BriefGenerated)
	if !ok {
		return ports.Result{}, fmt.Errorf("unexpected payload %T", payload)
	}

	id := brief.ConversationID
	if id == "" {
		id = ConversationID(event)
	}

	now := s.now()
	ev, err := domain.NewEvent(id, &domain.CanvassGenerated{
		ConversationID: id,
		Canvass:        Canvass(id, brief.Brief, now),
	}, now)
	if err != nil {
		return ports.Result{}, err
	}
	if err := publishAll(ctx, s.publisher, ev); err != nil {
		return ports.Result{}, err
	}

	return ports.Result{ConversationID: id, Message: CanvassGeneratedMessage}, nil
}

// Canvass renders the canvass report for a brief.
func Canvass(conversationID, brief string, at time.Time) string {
	return fmt.Sprintf("Canvass Report for %s:\n%s\nGenerated on %s", conversationID, brief, at.UTC().Format(canvassTimeLayout))
}

// deliveryStage is terminal: report rendering and mail sending happen elsewhere.
type deliveryStage struct {
	logger *slog.Logger
}

func (s *deliveryStage) Handle(ctx context.Context, event domain.Event) (ports.Result, error) {
	payload, err := event.Payload()
	if err != nil {
		return ports.Result{}, err
	}
	req, ok := payload.(*domain.EmailProvided)
	if !ok {
		return ports.Result{}, fmt.Errorf("unexpected payload %T", payload)
	}

	id := req.ConversationID
	if id == "" {
		id = ConversationID(event)
	}

	s.logger.InfoContext(ctx, "sending canvass report",
		slog.String("conversation_id", id),
		slog.String("email", req.Email),
		slog.String("canvass", req.Canvass),
	)

	return ports.Result{ConversationID: id, Message: DeliveredMessage}, nil
}
