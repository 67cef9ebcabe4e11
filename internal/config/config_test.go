package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ScenarioFlashCrash, cfg.Simulation.Scenario)
	assert.Equal(t, 1000, cfg.Simulation.Ticks)
	assert.Equal(t, 50, cfg.Simulation.NoiseTraders)
	assert.Equal(t, 50000.0, cfg.Simulation.WhaleQty)
	assert.Equal(t, 500, cfg.Simulation.WhaleTick)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("POLYSIM_SCENARIO", ScenarioRally)
	t.Setenv("POLYSIM_TICKS", "250")
	t.Setenv("POLYSIM_AGENTS", "7")
	t.Setenv("POLYSIM_WHALE_QTY", "1234.5")
	t.Setenv("POLYSIM_SEED", "99")
	t.Setenv("POLYSIM_TICK_INTERVAL_MS", "20")
	t.Setenv("PORT", "8088")
	t.Setenv("POLYSIM_SERVE", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, ScenarioRally, cfg.Simulation.Scenario)
	assert.Equal(t, 250, cfg.Simulation.Ticks)
	assert.Equal(t, 7, cfg.Simulation.NoiseTraders)
	assert.Equal(t, 1234.5, cfg.Simulation.WhaleQty)
	assert.Equal(t, int64(99), cfg.Simulation.Seed)
	assert.Equal(t, 20*time.Millisecond, cfg.Simulation.TickInterval)
	assert.Equal(t, "8088", cfg.Server.Port)
	assert.True(t, cfg.Server.Serve)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFromEnv_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("POLYSIM_WHALE_TICK=42\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("POLYSIM_WHALE_TICK") })

	cfg := LoadFromEnv(path)
	assert.Equal(t, 42, cfg.Simulation.WhaleTick)
}

func TestLoadFromEnv_IgnoresMalformed(t *testing.T) {
	t.Setenv("POLYSIM_TICKS", "lots")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, Default().Simulation.Ticks, cfg.Simulation.Ticks)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown scenario", func(c *Config) { c.Simulation.Scenario = "meltdown" }},
		{"negative ticks", func(c *Config) { c.Simulation.Ticks = -1 }},
		{"negative agents", func(c *Config) { c.Simulation.NoiseTraders = -2 }},
		{"zero whale", func(c *Config) { c.Simulation.WhaleQty = 0 }},
		{"zero candle ticks", func(c *Config) { c.Simulation.CandleTicks = 0 }},
		{"crunch at tick zero", func(c *Config) {
			c.Simulation.Scenario = ScenarioLiquidityCrunch
			c.Simulation.WhaleTick = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_EventTickZero(t *testing.T) {
	cfg := Default()
	cfg.Simulation.WhaleTick = 0

	cfg.Simulation.Scenario = ScenarioFlashCrash
	assert.NoError(t, cfg.Validate())

	cfg.Simulation.Scenario = ScenarioLiquidityCrunch
	assert.Error(t, cfg.Validate())

	cfg.Simulation.WhaleTick = 1
	assert.NoError(t, cfg.Validate())
}
