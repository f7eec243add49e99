/*
Package config loads server and settlement configuration from a TOML file.

Every field has a working default: a missing config file is not an error,
so `settlement serve` works out of the box with a local SQLite database
and the standard event calendar.

FILE FORMAT:

  [server]
  listen = ":8080"
  db = "./data/settlement.db"

  [events]
  uninvested_date = "2025-12-31"
  transfer_date = "2026-01-01"
  challenge_year = 2025

  [rates]
  uninvested = "0.15"
*/
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/mesu/settlement-engine/engine"
)

// Config is the full application configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Events EventsConfig `toml:"events"`
	Rates  RatesConfig  `toml:"rates"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
	DB     string `toml:"db"`
}

type EventsConfig struct {
	UninvestedDate string `toml:"uninvested_date"`
	TransferDate   string `toml:"transfer_date"`
	ChallengeYear  int    `toml:"challenge_year"`
}

type RatesConfig struct {
	Uninvested string `toml:"uninvested"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen: ":8080",
			DB:     "./data/settlement.db",
		},
		Events: EventsConfig{
			UninvestedDate: "2025-12-31",
			TransferDate:   "2026-01-01",
			ChallengeYear:  2025,
		},
		Rates: RatesConfig{
			Uninvested: "0.15",
		},
	}
}

// Load reads the config file at path, layered over the defaults.
// A missing file yields the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// EngineConfig converts the file representation into the engine's config.
func (c Config) EngineConfig() (engine.Config, error) {
	uninvestedDate, err := engine.ParseDate(c.Events.UninvestedDate)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid events.uninvested_date: %w", err)
	}
	transferDate, err := engine.ParseDate(c.Events.TransferDate)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid events.transfer_date: %w", err)
	}
	rate, err := decimal.NewFromString(c.Rates.Uninvested)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid rates.uninvested: %w", err)
	}

	return engine.Config{
		UninvestedRate:      rate,
		UninvestedEventDate: uninvestedDate,
		TransferEventDate:   transferDate,
		ChallengeYear:       c.Events.ChallengeYear,
	}, nil
}
