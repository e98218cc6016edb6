package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/canvass-pipeline/internal/adapters/config/file"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/pkg/config"
)

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(p *Pipeline) error {
		provider, err := file.NewProvider(path, p.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		p.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(p *Pipeline) error {
		p.config = provider
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithMemoryStore keeps conversations in process memory (default).
func WithMemoryStore() Option {
	return override(func(cfg *config.Config) {
		cfg.Storage.Type = "memory"
	})
}

// WithSQLite uses SQLite storage at path.
func WithSQLite(path string) Option {
	return override(func(cfg *config.Config) {
		cfg.Storage.Type = "sqlite"
		cfg.Storage.SQLite.Path = path
	})
}

// WithPostgres uses PostgreSQL storage.
// Recommended when several pipeline instances share conversations.
func WithPostgres(dsn string) Option {
	return override(func(cfg *config.Config) {
		cfg.Storage.Type = "postgres"
		cfg.Storage.Database = config.DatabaseConfig{Driver: "postgres", DSN: dsn}
	})
}

// WithDirectEvents runs every stage in-process, inside the publishing call (default).
func WithDirectEvents() Option {
	return override(func(cfg *config.Config) {
		cfg.Events.Type = "direct"
	})
}

// WithKafkaEvents carries events over a Kafka topic consumed by groupID.
func WithKafkaEvents(brokers []string, topic, groupID string) Option {
	return override(func(cfg *config.Config) {
		cfg.Events.Type = "kafka"
		cfg.Events.Kafka = config.KafkaConfig{Brokers: brokers, Topic: topic, GroupID: groupID}
	})
}

// WithNATSEvents carries events over a NATS JetStream stream.
func WithNATSEvents(url string) Option {
	return override(func(cfg *config.Config) {
		cfg.Events.Type = "nats"
		cfg.Events.NATS.URL = url
	})
}

// WithStorageProvider sets a custom storage provider.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(p *Pipeline) error {
		p.storage = provider
		return nil
	}
}

// WithEventPublisher sets a custom event publisher. A publisher with a
// Bind(ports.EventHandler) method is bound to the stage orchestrator.
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(p *Pipeline) error {
		p.events = publisher
		return nil
	}
}

// WithEventSubscriber sets the consumer that feeds transport events to the stages.
func WithEventSubscriber(subscriber ports.EventSubscriber) Option {
	return func(p *Pipeline) error {
		p.subscriber = subscriber
		return nil
	}
}

// WithEnricher overrides the web-search hook built from configuration.
func WithEnricher(e ports.Enricher) Option {
	return func(p *Pipeline) error {
		p.enricher = e
		return nil
	}
}

// WithPhraser overrides the reply-phrasing hook built from configuration.
func WithPhraser(ph ports.Phraser) Option {
	return func(p *Pipeline) error {
		p.phraser = ph
		return nil
	}
}

func override(fn func(*config.Config)) Option {
	return func(p *Pipeline) error {
		p.overrides = append(p.overrides, fn)
		return nil
	}
}
