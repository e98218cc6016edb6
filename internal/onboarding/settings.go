package onboarding

import (
	"sync/atomic"
	"time"

	"github.com/tjfontaine/canvass-pipeline/internal/pkg/config"
)

// Settings are the hook knobs that may change while the process runs.
type Settings struct {
	EnrichmentEnabled bool
	EnrichmentTimeout time.Duration
	PhrasingEnabled   bool
	PhrasingTimeout   time.Duration
	MaxPromptTokens   int
}

// SettingsFromConfig extracts the hook settings from a loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		EnrichmentEnabled: cfg.Enrichment.Enabled,
		EnrichmentTimeout: cfg.Enrichment.Timeout,
		PhrasingEnabled:   cfg.Phrasing.Enabled,
		PhrasingTimeout:   cfg.Phrasing.Timeout,
		MaxPromptTokens:   cfg.Phrasing.MaxPromptTokens,
	}
}

// LiveSettings holds Settings that can be swapped atomically by a config watcher.
type LiveSettings struct {
	v atomic.Pointer[Settings]
}

func NewLiveSettings(s Settings) *LiveSettings {
	ls := &LiveSettings{}
	ls.Store(s)
	return ls
}

func (l *LiveSettings) Load() Settings {
	return *l.v.Load()
}

func (l *LiveSettings) Store(s Settings) {
	l.v.Store(&s)
}
