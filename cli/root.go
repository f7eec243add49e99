/*
Package cli implements the settlement command-line interface.

COMMANDS:
  settlement serve    Run the HTTP API server with the sweep scheduler
  settlement sweep    Run one settlement sweep and exit
  settlement verify   Audit flag/receipt consistency (read-only)

All commands read the same TOML config file (--config); individual flags
override file values where it makes sense for one-shot runs.
*/
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesu/settlement-engine/config"
	"github.com/mesu/settlement-engine/engine"
	"github.com/mesu/settlement-engine/store/sqlite"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "settlement",
	Short: "Interest-accrual and ledger-event settlement engine",
	Long: `Settlement engine for savings accounts: credits maturity interest on
fixed-term investments, applies the year-end uninvested-savings interest
event, and executes the final transfer event. Every settlement is
idempotent: a deterministic receipt number makes re-runs and concurrent
triggers safe.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to TOML config file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config (or the defaults) and
// applies the per-command database override.
func loadConfig(dbOverride string) (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, err
	}
	if dbOverride != "" {
		cfg.Server.DB = dbOverride
	}
	return cfg, nil
}

// openEngine builds the SQLite store and the settlement engine from config.
// The caller owns the returned store and must Close it.
func openEngine(cfg config.Config) (*sqlite.Store, *engine.Engine, error) {
	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := sqlite.New(cfg.Server.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", cfg.Server.DB, err)
	}

	return store, engine.New(store, engCfg), nil
}
