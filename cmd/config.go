package main

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	AccessToken       string        `env:"ACCESS_TOKEN,required=true" validate:"required"`
	JWTSecret         string        `env:"JWT_SECRET,required=true" validate:"required"`
	BackendURL        string        `env:"BACKEND_URL,required=true" validate:"url"`
	EventsURL         string        `env:"EVENTS_URL,required=true" validate:"url"`
	HistoryLimit      int           `env:"HISTORY_LIMIT,default=50" validate:"gte=1"`
	DebounceWindow    time.Duration `env:"DEBOUNCE_WINDOW,default=300ms" validate:"gt=0"`
	CacheFilepath     string        `env:"CACHE_FILEPATH,required=true" validate:"required"`
	CacheLimit        *int          `env:"CACHE_LIMIT"`
	IndexFilepath     string        `env:"INDEX_FILEPATH,required=true" validate:"required"`
	FlaggedWords      []string      `env:"FLAGGED_WORDS"`
	MaskCharacter     rune          `env:"MASK_CHARACTER,default=*"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,default=30s" validate:"gt=0"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
}

var validate = validator.New()

func (c Config) Validate() error {
	return validate.Struct(c)
}
