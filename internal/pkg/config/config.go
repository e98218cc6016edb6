package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes every environment override, e.g. CANVASS_SERVER__PORT.
const EnvPrefix = "CANVASS_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Events     EventsConfig     `koanf:"events"`
	Enrichment EnrichmentConfig `koanf:"enrichment"`
	Phrasing   PhrasingConfig   `koanf:"phrasing"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, postgres
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration for multi-dialect support
	Database DatabaseConfig `koanf:"database"`
	// MaxConflictRetries bounds how often a turn is replayed after losing a conditional write.
	MaxConflictRetries int `koanf:"max_conflict_retries"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// DatabaseConfig is the generic database configuration supporting multiple dialects.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

type EventsConfig struct {
	Type  string      `koanf:"type"` // direct, kafka, nats
	Kafka KafkaConfig `koanf:"kafka"`
	NATS  NATSConfig  `koanf:"nats"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"group_id"`
}

type NATSConfig struct {
	URL           string `koanf:"url"`
	Stream        string `koanf:"stream"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Durable       string `koanf:"durable"`
}

type EnrichmentConfig struct {
	Enabled bool          `koanf:"enabled"`
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type PhrasingConfig struct {
	Enabled         bool          `koanf:"enabled"`
	APIKey          string        `koanf:"api_key"`
	BaseURL         string        `koanf:"base_url"`
	Model           string        `koanf:"model"`
	Timeout         time.Duration `koanf:"timeout"`
	MaxPromptTokens int           `koanf:"max_prompt_tokens"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"server.port":                  8080,
	"server.request_timeout":       "30s",
	"storage.type":                 "memory",
	"storage.sqlite.path":          "./data/canvass.db",
	"storage.max_conflict_retries": 3,
	"events.type":                  "direct",
	"events.kafka.topic":           "canvass-events",
	"events.kafka.group_id":        "canvass-pipeline",
	"events.nats.stream":           "CANVASS",
	"events.nats.subject_prefix":   "canvass.events",
	"events.nats.durable":          "canvass-pipeline",
	"enrichment.enabled":           true,
	"enrichment.base_url":          "https://serpapi.com",
	"enrichment.timeout":           "5s",
	"phrasing.enabled":             true,
	"phrasing.base_url":            "https://api.openai.com/v1",
	"phrasing.model":               "gpt-4o-mini",
	"phrasing.timeout":             "15s",
	"phrasing.max_prompt_tokens":   6000,
}

// Load reads config.yaml from the working directory, then env overrides.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the given YAML file (a missing file is fine), then applies
// CANVASS_ environment overrides and defaults.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Enrichment.APIKey = substituteEnvVars(cfg.Enrichment.APIKey)
	cfg.Phrasing.APIKey = substituteEnvVars(cfg.Phrasing.APIKey)
	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
