package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_HISTORY_LATENCY simulates a slow history endpoint, used to force
	// a room switch to overtake an in-flight load
	HistoryLatency time.Duration `envconfig:"E2E_HISTORY_LATENCY" default:"200ms"`
	// E2E_DEBOUNCE_WINDOW is the quiet period of the room list refresh
	DebounceWindow time.Duration `envconfig:"E2E_DEBOUNCE_WINDOW" default:"300ms"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
