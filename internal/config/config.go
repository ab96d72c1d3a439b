// Package config loads server settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the server settings. Command-line flags override these.
type Config struct {
	DBPath      string `env:"RXLEDGER_DB" envDefault:"rxledger.sqlite3"`
	JournalPath string `env:"RXLEDGER_JOURNAL" envDefault:"rxledger.journal"`
	Addr        string `env:"RXLEDGER_ADDR" envDefault:":8080"`
	AdminCred   string `env:"RXLEDGER_ADMIN" envDefault:"0x0000000000000000000000000000000000000a11"`
	JWTSecret   string `env:"RXLEDGER_JWT_SECRET"`
	LogPath     string `env:"RXLEDGER_LOG"`
}

// Load reads Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
