// Package pipeline provides the public API for embedding the canvass pipeline.
// This is the stable API for external consumers.
package pipeline

import (
	"github.com/tjfontaine/canvass-pipeline/internal/runtime"
)

// Pipeline is the main entry point for running the canvass pipeline.
// See internal/runtime.Pipeline for full documentation.
type Pipeline = runtime.Pipeline

// Option is a functional option for configuring a Pipeline.
type Option = runtime.Option

// New creates a new Pipeline with the given options.
// Example:
//
//	p, err := pipeline.New(
//	    pipeline.WithFileConfig("config.yaml"),
//	    pipeline.WithSQLite("./data/canvass.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithMemoryStore = runtime.WithMemoryStore
	WithSQLite      = runtime.WithSQLite
	WithPostgres    = runtime.WithPostgres

	// Events
	WithDirectEvents = runtime.WithDirectEvents
	WithKafkaEvents  = runtime.WithKafkaEvents
	WithNATSEvents   = runtime.WithNATSEvents

	// Hooks
	WithEnricher = runtime.WithEnricher
	WithPhraser  = runtime.WithPhraser

	// Advanced options
	WithLogger          = runtime.WithLogger
	WithStorageProvider = runtime.WithStorageProvider
	WithEventPublisher  = runtime.WithEventPublisher
	WithEventSubscriber = runtime.WithEventSubscriber
)
