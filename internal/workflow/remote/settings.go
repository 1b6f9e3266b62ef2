package remote

import (
	"strings"
	"time"

	"github.com/chambersiq/draftflow/internal/config"
)

// Settings captures how to reach the remote workflow engine.
type Settings struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// SettingsFromConfig builds Settings from the project's .draftflow config.
// Environment overrides are already folded in by config.Load.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		BaseURL: config.DefaultEngineURL,
		Timeout: config.DefaultRequestTimeout,
	}
	if cfg != nil {
		engine := cfg.Project.Engine
		if u := strings.TrimSpace(engine.BaseURL); u != "" {
			settings.BaseURL = u
		}
		settings.AuthToken = engine.AuthToken
		if engine.RequestTimeout > 0 {
			settings.Timeout = engine.RequestTimeout
		}
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if s.BaseURL == "" {
		s.BaseURL = config.DefaultEngineURL
	}
	s.AuthToken = strings.TrimSpace(s.AuthToken)
	if s.Timeout <= 0 {
		s.Timeout = config.DefaultRequestTimeout
	}
}
