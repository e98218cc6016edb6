// Package onboarding implements the questionnaire that collects client data
// one chat turn at a time.
//
// A conversation fills seven fields in a fixed order. Each answer is stored as
// soon as it arrives and the user is asked to confirm it. "yes" moves on to the
// next question, "no" asks for a clarification of the last one. Once all seven
// fields hold a value the user is shown a recap and must reply "approved",
// which publishes ClientDataCollected exactly once.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/tokens"
)

// Persona is the system prompt used when phrasing replies.
const Persona = "You are August Says, a cheerful and intuitive sentiment tool."

// CompletionMessage is the reply once the collected data is approved.
const CompletionMessage = "Let's generate your canvass and deploy your first game!"

// Turn is the outcome of one chat message.
type Turn struct {
	Reply    string
	Complete bool
	Events   []domain.Event
}

// Machine advances a conversation by one message. It is stateless apart from
// its collaborators and safe for concurrent use.
type Machine struct {
	enricher ports.Enricher
	phraser  ports.Phraser
	settings *LiveSettings
	counter  tokens.Counter
	persona  string
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithEnricher sets the web-search hook run on the company answer.
func WithEnricher(e ports.Enricher) Option {
	return func(m *Machine) { m.enricher = e }
}

// WithPhraser sets the hook that polishes every reply.
func WithPhraser(p ports.Phraser) Option {
	return func(m *Machine) { m.phraser = p }
}

// WithSettings shares a hot-reloadable settings holder.
func WithSettings(s *LiveSettings) Option {
	return func(m *Machine) { m.settings = s }
}

// WithTokenCounter sets the counter used to fit the transcript into the phrasing prompt.
func WithTokenCounter(c tokens.Counter) Option {
	return func(m *Machine) { m.counter = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New creates a Machine. Without hooks it runs fully deterministic.
func New(opts ...Option) *Machine {
	m := &Machine{
		persona: Persona,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.settings == nil {
		m.settings = NewLiveSettings(Settings{
			EnrichmentEnabled: true,
			EnrichmentTimeout: 5 * time.Second,
			PhrasingEnabled:   true,
			PhrasingTimeout:   15 * time.Second,
		})
	}
	if m.counter == nil {
		m.counter = tokens.NewEstimator()
	}
	return m
}

// Step applies message to data and returns the reply. data is mutated in
// place; the caller persists it. Events are built but not published.
func (m *Machine) Step(ctx context.Context, data *domain.ClientData, message string) (Turn, error) {
	settings := m.settings.Load()
	data.Append(domain.RoleUser, message)

	var turn Turn
	answered := data.Answered()
	normalized := strings.ToLower(strings.TrimSpace(message))

	switch {
	case answered == domain.NumFields && data.Approved:
		turn.Reply = CompletionMessage

	case answered == domain.NumFields && normalized == "approved":
		data.Approved = true
		turn.Reply = CompletionMessage
		turn.Complete = true

	case answered == domain.NumFields:
		turn.Reply = Recap(data)

	case normalized == "yes" && answered > 0:
		turn.Reply = domain.Fields[answered].Question

	case normalized == "no" && answered > 0:
		turn.Reply = fmt.Sprintf("Could you clarify your answer for %s?", domain.Fields[answered-1].Question)

	default:
		field := domain.Fields[answered]
		candidate := message
		field.Set(data, &candidate)

		if field.Name == "company" {
			m.enrich(ctx, settings, data, message)
		}
		turn.Reply = fmt.Sprintf("Just so I understand, you said %s for %s? Please confirm with 'Yes' or 'No'.", message, field.Name)
	}

	turn.Reply = m.phrase(ctx, settings, data, turn.Reply)
	data.Append(domain.RoleAssistant, turn.Reply)

	if turn.Complete {
		ev, err := domain.NewEvent(data.ConversationID, &domain.ClientDataCollected{ClientData: *data.Clone()}, m.now())
		if err != nil {
			return Turn{}, fmt.Errorf("build %s event: %w", domain.EventClientDataCollected, err)
		}
		turn.Events = append(turn.Events, ev)
	}

	m.logger.DebugContext(ctx, "onboarding step",
		slog.String("conversation_id", data.ConversationID),
		slog.Int("answered", data.Answered()),
		slog.Bool("complete", turn.Complete),
	)

	return turn, nil
}

func (m *Machine) enrich(ctx context.Context, s Settings, data *domain.ClientData, query string) {
	if m.enricher == nil || !s.EnrichmentEnabled {
		return
	}

	snippet := bestEffort(ctx, m.logger, "enrichment", s.EnrichmentTimeout, "", func(ctx context.Context) (string, error) {
		return m.enricher.Enrich(ctx, query)
	})
	if snippet != "" {
		data.Append(domain.RoleSystem, "Context from search: "+snippet)
	}
}

func (m *Machine) phrase(ctx context.Context, s Settings, data *domain.ClientData, draft string) string {
	if m.phraser == nil || !s.PhrasingEnabled {
		return draft
	}

	transcript := tokens.FitTranscript(m.counter, m.persona, draft, data.Messages, s.MaxPromptTokens)
	phrased := bestEffort(ctx, m.logger, "phrasing", s.PhrasingTimeout, draft, func(ctx context.Context) (string, error) {
		return m.phraser.Phrase(ctx, transcript, draft)
	})
	if strings.TrimSpace(phrased) == "" {
		return draft
	}
	return phrased
}

// Recap lists the collected fields and asks for approval.
func Recap(data *domain.ClientData) string {
	var b strings.Builder
	b.WriteString("Here's what I gathered:\n")
	for i, f := range domain.Fields {
		fmt.Fprintf(&b, "- %s: %s\n", strings.ToUpper(f.Name[:1])+f.Name[1:], domain.FieldValue(data, i))
	}
	b.WriteString("Is this correct? Please respond with 'Approved' to proceed.")
	return b.String()
}
