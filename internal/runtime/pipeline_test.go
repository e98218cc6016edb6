package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/pkg/config"
	"github.com/tjfontaine/canvass-pipeline/internal/storage/memory"
)

type staticConfig struct {
	cfg config.Config
}

func (s *staticConfig) Load(ctx context.Context) (*config.Config, error) {
	c := s.cfg
	return &c, nil
}

func (s *staticConfig) Watch(ctx context.Context, onChange func(*config.Config)) error { return nil }
func (s *staticConfig) Close() error                                                   { return nil }

func testConfig() *staticConfig {
	return &staticConfig{cfg: config.Config{
		Server:  config.ServerConfig{Port: 0, RequestTimeout: 5 * time.Second},
		Storage: config.StorageConfig{Type: "memory", MaxConflictRetries: 3},
		Events:  config.EventsConfig{Type: "direct"},
		Phrasing: config.PhrasingConfig{
			Model:           "gpt-4o-mini",
			MaxPromptTokens: 6000,
		},
	}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithConfigProvider(testConfig())}, opts...)
	p, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return p
}

func postChat(t *testing.T, h http.Handler, conversationID, message string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"conversationId": conversationID, "message": message})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(string(body))))
	if rec.Code != http.StatusOK {
		t.Fatalf("chat %q: status %d body %s", message, rec.Code, rec.Body.String())
	}
}

func TestPipeline_New_RequiresConfig(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("expected error without config provider")
	}
	if err.Error() != "config provider required (use WithFileConfig or WithConfigProvider)" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPipeline_HandlerBeforeStart(t *testing.T) {
	p, err := New(WithConfigProvider(testConfig()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Handler() != nil {
		t.Error("Handler() before Start should be nil")
	}
}

func TestPipeline_FullConversation(t *testing.T) {
	store := memory.New()
	p := startPipeline(t, WithStorageProvider(store))
	h := p.Handler()

	answers := []string{"Acme", "CTO", "Engineers", "Budget", "Growth", "High", "None"}
	for i, a := range answers {
		postChat(t, h, "conv_rt", a)
		if i < len(answers)-1 {
			postChat(t, h, "conv_rt", "yes")
		}
	}
	postChat(t, h, "conv_rt", "approved")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations/conv_rt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get conversation: %d", rec.Code)
	}
	var data domain.ClientData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !data.Approved || data.Answered() != domain.NumFields {
		t.Fatalf("approved=%v answered=%d", data.Approved, data.Answered())
	}
	if last := data.Messages[len(data.Messages)-1]; last.Content != "Let's generate your canvass and deploy your first game!" {
		t.Errorf("last reply = %q", last.Content)
	}

	events, err := store.ListEvents(context.Background(), "conv_rt", 100)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	seen := map[domain.EventType]bool{}
	for _, ev := range events {
		seen[ev.Type] = true
	}
	for _, want := range []domain.EventType{
		domain.EventChatMessageReceived,
		domain.EventClientDataCollected,
		domain.EventBriefGenerated,
		domain.EventCanvassGenerated,
	} {
		if !seen[want] {
			t.Errorf("event log missing %s", want)
		}
	}
}

func TestPipeline_EventsIngress(t *testing.T) {
	p := startPipeline(t)

	ev, err := domain.NewEvent("conv_in", &domain.ChatMessageReceived{ConversationID: "conv_in", Message: "Acme"}, time.Now())
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	body, _ := json.Marshal(ev)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(string(body))))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var res ports.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.ConversationID != "conv_in" {
		t.Errorf("conversationId = %q", res.ConversationID)
	}
	if !strings.Contains(res.Message, "Acme") {
		t.Errorf("reply = %q", res.Message)
	}
}

func TestPipeline_HealthAndSQLite(t *testing.T) {
	p := startPipeline(t, WithSQLite(filepath.Join(t.TempDir(), "canvass.db")))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status %d", rec.Code)
	}

	postChat(t, p.Handler(), "conv_sql", "Acme")

	rec = httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations/conv_sql", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get conversation: %d", rec.Code)
	}
	var data domain.ClientData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.Company == nil || *data.Company != "Acme" || data.Version != 1 {
		t.Errorf("stored = %+v", data)
	}
}

func TestPipeline_UnknownStorage(t *testing.T) {
	cfg := testConfig()
	cfg.cfg.Storage.Type = "cassandra"
	p, err := New(WithLogger(quietLogger()), WithConfigProvider(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}

type recordingPublisher struct {
	handler ports.EventHandler
	events  []domain.Event
}

func (r *recordingPublisher) Bind(h ports.EventHandler) { r.handler = h }
func (r *recordingPublisher) Close() error              { return nil }
func (r *recordingPublisher) Publish(ctx context.Context, ev domain.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestPipeline_InjectedPublisherIsBound(t *testing.T) {
	pub := &recordingPublisher{}
	p := startPipeline(t, WithEventPublisher(pub))

	if pub.handler == nil {
		t.Fatal("publisher was not bound to the orchestrator")
	}

	postChat(t, p.Handler(), "conv_pub", "hello")
	if len(pub.events) != 1 || pub.events[0].Type != domain.EventChatMessageReceived {
		t.Errorf("published = %+v", pub.events)
	}
}

type countingEnricher struct {
	mu    sync.Mutex
	calls int
}

func (e *countingEnricher) Enrich(ctx context.Context, query string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return "Acme makes anvils.", nil
}

func (e *countingEnricher) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type countingPhraser struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPhraser) Phrase(ctx context.Context, transcript []domain.Message, draft string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return draft, nil
}

func (p *countingPhraser) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestPipeline_HooksRunUnderDefaultFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	enricher := &countingEnricher{}
	phraser := &countingPhraser{}
	p, err := New(
		WithLogger(quietLogger()),
		WithFileConfig(path),
		WithEnricher(enricher),
		WithPhraser(phraser),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.Shutdown(ctx)
	})

	postChat(t, p.Handler(), "conv_hooks", "Acme Corp")

	if n := enricher.count(); n != 1 {
		t.Errorf("enricher calls = %d, want 1", n)
	}
	if n := phraser.count(); n != 1 {
		t.Errorf("phraser calls = %d, want 1", n)
	}
}
