// Package runtime provides the Pipeline struct and lifecycle management for
// the canvass pipeline service.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/canvass-pipeline/internal/adapters/events/direct"
	"github.com/tjfontaine/canvass-pipeline/internal/adapters/events/kafka"
	natsbus "github.com/tjfontaine/canvass-pipeline/internal/adapters/events/nats"
	"github.com/tjfontaine/canvass-pipeline/internal/backend/openai"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/enrichment/serpapi"
	"github.com/tjfontaine/canvass-pipeline/internal/frontdoor"
	"github.com/tjfontaine/canvass-pipeline/internal/frontdoor/chat"
	eventsfd "github.com/tjfontaine/canvass-pipeline/internal/frontdoor/events"
	"github.com/tjfontaine/canvass-pipeline/internal/onboarding"
	"github.com/tjfontaine/canvass-pipeline/internal/phrasing"
	"github.com/tjfontaine/canvass-pipeline/internal/pkg/config"
	"github.com/tjfontaine/canvass-pipeline/internal/pkg/safehttp"
	"github.com/tjfontaine/canvass-pipeline/internal/server"
	"github.com/tjfontaine/canvass-pipeline/internal/stages"
	"github.com/tjfontaine/canvass-pipeline/internal/storage/memory"
	"github.com/tjfontaine/canvass-pipeline/internal/storage/sqldb"
	"github.com/tjfontaine/canvass-pipeline/internal/tokens"
)

// APIBasePath prefixes every front door route.
const APIBasePath = "/api"

// Pipeline is the main entry point for running the canvass pipeline.
// It wires storage, the event transport, the stage orchestrator and the HTTP
// front doors, and can be embedded in larger applications or run standalone.
type Pipeline struct {
	// Dependencies (injected via options or built from config)
	config     ports.ConfigProvider
	storage    ports.StorageProvider
	events     ports.EventPublisher
	subscriber ports.EventSubscriber
	enricher   ports.Enricher
	phraser    ports.Phraser
	overrides  []func(*config.Config)

	// Internal state
	settings     *onboarding.LiveSettings
	orchestrator *stages.Orchestrator
	server       *server.Server
	closers      []namedCloser
	logger       *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

type namedCloser struct {
	name  string
	close func() error
}

// New creates a new Pipeline with the given options. A config provider is
// required; storage and transport default to what the config selects.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if p.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfigProvider)")
	}

	return p, nil
}

// Start loads configuration, builds the pipeline and starts serving.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx, p.cancel = context.WithCancel(ctx)

	cfg, err := p.config.Load(p.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, fn := range p.overrides {
		fn(cfg)
	}

	if err := p.initStorage(cfg); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err := p.initEvents(cfg); err != nil {
		return fmt.Errorf("init events: %w", err)
	}
	if err := p.initStages(cfg); err != nil {
		return fmt.Errorf("init stages: %w", err)
	}

	p.startSubscriber()
	p.startServer(cfg)

	go p.watchConfig()

	p.logger.Info("pipeline started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.String("events", cfg.Events.Type),
		slog.Bool("enrichment", p.enricher != nil),
		slog.Bool("phrasing", p.phraser != nil))

	return nil
}

// Handler returns the HTTP handler with every route mounted. Valid after Start.
func (p *Pipeline) Handler() http.Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.server == nil {
		return nil
	}
	return p.server.Router
}

// Shutdown gracefully stops the pipeline.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info("shutting down pipeline")

	if p.cancel != nil {
		p.cancel()
	}

	if p.server != nil {
		if err := p.server.Shutdown(ctx); err != nil {
			p.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	p.wg.Wait()

	// Close in reverse order of creation.
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.close(); err != nil {
			p.logger.Error("failed to close "+c.name, slog.String("error", err.Error()))
		}
	}
	p.closers = nil

	if err := p.config.Close(); err != nil {
		p.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	p.logger.Info("pipeline shutdown complete")
	return nil
}

func (p *Pipeline) addCloser(name string, fn func() error) {
	p.closers = append(p.closers, namedCloser{name: name, close: fn})
}

// initStorage builds the store selected by cfg unless one was injected.
func (p *Pipeline) initStorage(cfg *config.Config) error {
	if p.storage != nil {
		p.addCloser("storage", p.storage.Close)
		return nil
	}

	switch cfg.Storage.Type {
	case "", "memory":
		p.storage = memory.New()
	case "sqlite":
		store, err := sqldb.NewSQLite(cfg.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		p.storage = store
	case "postgres", "database":
		driver := cfg.Storage.Database.Driver
		if driver == "" {
			driver = "postgres"
		}
		store, err := sqldb.New(sqldb.Config{Driver: driver, DSN: cfg.Storage.Database.DSN})
		if err != nil {
			return fmt.Errorf("create %s storage: %w", driver, err)
		}
		p.storage = store
	default:
		return fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}

	p.addCloser("storage", p.storage.Close)
	return nil
}

// initEvents builds the transport selected by cfg unless one was injected.
func (p *Pipeline) initEvents(cfg *config.Config) error {
	if p.events != nil {
		p.addCloser("events", p.events.Close)
		if p.subscriber != nil {
			p.addCloser("subscriber", p.subscriber.Close)
		}
		return nil
	}

	switch cfg.Events.Type {
	case "", "direct":
		p.events = direct.NewPublisher(p.logger)
		p.addCloser("events", p.events.Close)

	case "kafka":
		kcfg := kafka.Config{
			Brokers: cfg.Events.Kafka.Brokers,
			Topic:   cfg.Events.Kafka.Topic,
			GroupID: cfg.Events.Kafka.GroupID,
		}
		pub, err := kafka.NewPublisher(kcfg)
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		p.events = pub
		p.addCloser("events", pub.Close)

		sub, err := kafka.NewSubscriber(kcfg, p.logger)
		if err != nil {
			return fmt.Errorf("create kafka subscriber: %w", err)
		}
		p.subscriber = sub
		p.addCloser("subscriber", sub.Close)

	case "nats":
		bus, err := natsbus.Connect(p.ctx, natsbus.Config{
			URL:           cfg.Events.NATS.URL,
			Stream:        cfg.Events.NATS.Stream,
			SubjectPrefix: cfg.Events.NATS.SubjectPrefix,
			Durable:       cfg.Events.NATS.Durable,
		}, p.logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		p.events = bus
		p.subscriber = bus
		p.addCloser("events", bus.Close)

	default:
		return fmt.Errorf("unknown events type %q", cfg.Events.Type)
	}

	return nil
}

// initStages builds the hooks, the onboarding machine and the orchestrator.
func (p *Pipeline) initStages(cfg *config.Config) error {
	if p.enricher == nil && cfg.Enrichment.APIKey != "" {
		p.enricher = serpapi.New(cfg.Enrichment.APIKey,
			serpapi.WithBaseURL(cfg.Enrichment.BaseURL),
			serpapi.WithHTTPClient(safehttp.NewClient(cfg.Enrichment.Timeout)),
		)
	}
	if p.phraser == nil && cfg.Phrasing.APIKey != "" {
		client := openai.NewClient(cfg.Phrasing.APIKey,
			openai.WithBaseURL(cfg.Phrasing.BaseURL),
			openai.WithHTTPClient(safehttp.NewClient(cfg.Phrasing.Timeout)),
		)
		p.phraser = phrasing.New(client, cfg.Phrasing.Model, onboarding.Persona)
	}

	var counter tokens.Counter
	tc, err := tokens.ForModel(cfg.Phrasing.Model)
	if err != nil {
		p.logger.Warn("tokenizer unavailable, estimating prompt size",
			slog.String("model", cfg.Phrasing.Model),
			slog.String("error", err.Error()))
		counter = tokens.NewEstimator()
	} else {
		counter = tc
	}

	p.settings = onboarding.NewLiveSettings(onboarding.SettingsFromConfig(cfg))

	machineOpts := []onboarding.Option{
		onboarding.WithSettings(p.settings),
		onboarding.WithTokenCounter(counter),
		onboarding.WithLogger(p.logger),
	}
	if p.enricher != nil {
		machineOpts = append(machineOpts, onboarding.WithEnricher(p.enricher))
	}
	if p.phraser != nil {
		machineOpts = append(machineOpts, onboarding.WithPhraser(p.phraser))
	}

	orch, err := stages.New(stages.Config{
		Store:              p.storage,
		Publisher:          p.events,
		Machine:            onboarding.New(machineOpts...),
		EventLog:           p.storage,
		MaxConflictRetries: cfg.Storage.MaxConflictRetries,
		Logger:             p.logger,
	})
	if err != nil {
		return err
	}
	p.orchestrator = orch

	if binder, ok := p.events.(interface{ Bind(ports.EventHandler) }); ok {
		binder.Bind(orch)
	}
	return nil
}

func (p *Pipeline) startSubscriber() {
	if p.subscriber == nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.subscriber.Run(p.ctx, p.orchestrator); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("event subscriber stopped", slog.String("error", err.Error()))
		}
	}()
}

// startServer mounts the front doors and starts the HTTP server.
func (p *Pipeline) startServer(cfg *config.Config) {
	p.server = server.New(server.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, p.logger)

	frontdoor.Mount(p.server.Router, APIBasePath,
		chat.NewHandler(p.events, p.storage, p.storage, p.logger),
		eventsfd.NewHandler(p.orchestrator, p.logger),
	)

	srv := p.server
	go func() {
		if err := srv.Start(); err != nil {
			p.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
}

// watchConfig applies hook settings from reloaded config. Storage, transport
// and listener changes need a restart.
func (p *Pipeline) watchConfig() {
	onChange := func(newCfg *config.Config) {
		for _, fn := range p.overrides {
			fn(newCfg)
		}
		p.settings.Store(onboarding.SettingsFromConfig(newCfg))
		p.logger.Info("hook settings reloaded",
			slog.Bool("enrichment_enabled", newCfg.Enrichment.Enabled),
			slog.Bool("phrasing_enabled", newCfg.Phrasing.Enabled))
	}

	if err := p.config.Watch(p.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}
