package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesu/settlement-engine/config"
	"github.com/mesu/settlement-engine/engine"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load("/nonexistent/settlement.toml")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "2025-12-31", cfg.Events.UninvestedDate)
	assert.Equal(t, "0.15", cfg.Rates.Uninvested)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
listen = ":9090"

[rates]
uninvested = "0.10"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "0.10", cfg.Rates.Uninvested)
	// Untouched sections keep their defaults.
	assert.Equal(t, "2026-01-01", cfg.Events.TransferDate)
	assert.Equal(t, "./data/settlement.db", cfg.Server.DB)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nlisten=:::"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestEngineConfig_Conversion(t *testing.T) {
	cfg := config.Default()

	engCfg, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, engine.NewDate(2025, time.December, 31), engCfg.UninvestedEventDate)
	assert.Equal(t, engine.NewDate(2026, time.January, 1), engCfg.TransferEventDate)
	assert.Equal(t, 2025, engCfg.ChallengeYear)
	assert.True(t, engCfg.UninvestedRate.Equal(engine.DefaultUninvestedRate))
}

func TestEngineConfig_RejectsBadDate(t *testing.T) {
	cfg := config.Default()
	cfg.Events.UninvestedDate = "31/12/2025"

	_, err := cfg.EngineConfig()
	assert.Error(t, err)
}
