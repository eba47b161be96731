// Package config loads process configuration: required settings come from
// the environment, operational knobs from an optional YAML overrides file
// that can be reloaded while the process runs.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env is the environment-sourced configuration. Missing required values are
// a fatal startup error, never masked.
type Env struct {
	// Token authenticates the Telegram bot.
	Token string `env:"TOKEN,required"`
	// ChatID is the destination chat.
	ChatID int64 `env:"CHAT_ID,required"`
	// Local switches to continuous mode: no run time budget, longer feed
	// window, loops until signalled.
	Local bool `env:"LOCAL"`

	StorePath   string        `env:"STORE_PATH" envDefault:"./quakebot.db"`
	MapDir      string        `env:"MAP_DIR" envDefault:"./map"`
	FeedBaseURL string        `env:"FEED_BASE_URL"`
	MaxRunTime  time.Duration `env:"MAX_RUN_TIME" envDefault:"5m"`
	MetricsAddr string        `env:"METRICS_ADDR"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	// ConfigFile points at the optional YAML overrides file.
	ConfigFile string `env:"CONFIG_FILE"`
}

// Load parses the environment.
func Load() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
