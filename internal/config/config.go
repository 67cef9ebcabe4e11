package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Scenario names understood by the scenario driver.
const (
	ScenarioBaseline        = "baseline"
	ScenarioFlashCrash      = "flash_crash"
	ScenarioRally           = "rally"
	ScenarioLiquidityCrunch = "liquidity_crunch"
)

type Simulation struct {
	Scenario     string
	Ticks        int
	NoiseTraders int
	WhaleQty     float64
	WhaleTick    int
	Seed         int64
	// TickInterval paces the run so the inspection API can be watched live.
	// Zero runs flat out.
	TickInterval  time.Duration
	CandleTicks   int
	ProgressEvery int
}

type Server struct {
	// Port for the inspection API. Empty disables it.
	Port        string
	MetricsPort string
	CORSOrigin  string
	// Serve keeps the servers up after the run completes.
	Serve bool
}

type Config struct {
	Simulation Simulation
	Server     Server
	LogLevel   string
}

func Default() Config {
	return Config{
		Simulation: Simulation{
			Scenario:      ScenarioFlashCrash,
			Ticks:         1000,
			NoiseTraders:  50,
			WhaleQty:      50000,
			WhaleTick:     500,
			Seed:          42,
			CandleTicks:   10,
			ProgressEvery: 100,
		},
		Server: Server{
			MetricsPort: "9090",
			CORSOrigin:  "*",
		},
		LogLevel: "info",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	sim := &cfg.Simulation
	sim.Scenario = getEnv("POLYSIM_SCENARIO", sim.Scenario)
	sim.Ticks = getInt("POLYSIM_TICKS", sim.Ticks)
	sim.NoiseTraders = getInt("POLYSIM_AGENTS", sim.NoiseTraders)
	sim.WhaleTick = getInt("POLYSIM_WHALE_TICK", sim.WhaleTick)
	sim.CandleTicks = getInt("POLYSIM_CANDLE_TICKS", sim.CandleTicks)
	sim.ProgressEvery = getInt("POLYSIM_PROGRESS_EVERY", sim.ProgressEvery)

	if qty := os.Getenv("POLYSIM_WHALE_QTY"); qty != "" {
		if v, err := strconv.ParseFloat(qty, 64); err == nil {
			sim.WhaleQty = v
		}
	}
	if seed := os.Getenv("POLYSIM_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			sim.Seed = v
		}
	}
	if ms := os.Getenv("POLYSIM_TICK_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			sim.TickInterval = time.Duration(v) * time.Millisecond
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.MetricsPort = getEnv("METRICS_PORT", cfg.Server.MetricsPort)
	cfg.Server.CORSOrigin = getEnv("CORS_ORIGIN", cfg.Server.CORSOrigin)
	if serve := os.Getenv("POLYSIM_SERVE"); serve != "" {
		cfg.Server.Serve = serve == "true"
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	sim := c.Simulation
	switch sim.Scenario {
	case ScenarioBaseline, ScenarioFlashCrash, ScenarioRally, ScenarioLiquidityCrunch:
	default:
		return fmt.Errorf("unknown scenario %q", sim.Scenario)
	}
	if sim.Ticks < 0 {
		return fmt.Errorf("ticks must be >= 0, got %d", sim.Ticks)
	}
	if sim.NoiseTraders < 0 {
		return fmt.Errorf("noise traders must be >= 0, got %d", sim.NoiseTraders)
	}
	if sim.Scenario != ScenarioBaseline && sim.WhaleTick < 0 {
		return fmt.Errorf("whale tick must be >= 0, got %d", sim.WhaleTick)
	}
	if sim.Scenario == ScenarioLiquidityCrunch && sim.WhaleTick < 1 {
		return fmt.Errorf("liquidity crunch tick must be >= 1, got %d", sim.WhaleTick)
	}
	if (sim.Scenario == ScenarioFlashCrash || sim.Scenario == ScenarioRally) && !(sim.WhaleQty > 0) {
		return fmt.Errorf("whale quantity must be positive, got %v", sim.WhaleQty)
	}
	if sim.CandleTicks <= 0 {
		return errors.New("candle ticks must be positive")
	}
	if sim.TickInterval < 0 {
		return errors.New("tick interval must not be negative")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
