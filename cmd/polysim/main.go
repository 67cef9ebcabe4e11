package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/nathanyu/polysim/internal/config"
	"github.com/nathanyu/polysim/internal/handler"
	"github.com/nathanyu/polysim/internal/logging"
	"github.com/nathanyu/polysim/internal/marketdata"
	"github.com/nathanyu/polysim/internal/metrics"
	"github.com/nathanyu/polysim/internal/scenario"
	"github.com/nathanyu/polysim/internal/sim"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(runMain(os.Args[1:], os.Stderr))
}

// runMain parses args, runs one simulation and returns the process exit code.
// Deferred cleanup always runs before the code is returned.
func runMain(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("polysim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		envFile     = fs.String("env", "", "path to a .env file (default ./.env)")
		scenarioF   = fs.String("scenario", "", "baseline, flash_crash, rally or liquidity_crunch")
		ticks       = fs.Int("ticks", 0, "number of ticks to run")
		agents      = fs.Int("agents", 0, "number of noise traders")
		whaleQty    = fs.Float64("whale-qty", 0, "whale order size")
		whaleTick   = fs.Int("whale-tick", 0, "tick at which the scenario event fires")
		seed        = fs.Int64("seed", 0, "random seed")
		interval    = fs.Duration("interval", 0, "pause between ticks")
		port        = fs.String("port", "", "inspection API port; empty disables the API")
		metricsPort = fs.String("metrics-port", "", "Prometheus /metrics port; empty disables it")
		serve       = fs.Bool("serve", false, "keep serving after the run completes")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg := config.LoadFromEnv(*envFile)

	// Flags set on the command line override env and .env values.
	s := &cfg.Simulation
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scenario":
			s.Scenario = *scenarioF
		case "ticks":
			s.Ticks = *ticks
		case "agents":
			s.NoiseTraders = *agents
		case "whale-qty":
			s.WhaleQty = *whaleQty
		case "whale-tick":
			s.WhaleTick = *whaleTick
		case "seed":
			s.Seed = *seed
		case "interval":
			s.TickInterval = *interval
		case "port":
			cfg.Server.Port = *port
		case "metrics-port":
			cfg.Server.MetricsPort = *metricsPort
		case "serve":
			cfg.Server.Serve = *serve
		}
	})

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return exitError
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("simulation failed", zap.Error(err))
		return exitError
	}
	return exitOK
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	publisher := marketdata.NewPublisher(cfg.Simulation.CandleTicks, logger)

	engine := sim.New(
		sim.WithSeed(cfg.Simulation.Seed),
		sim.WithLogger(logger),
		sim.WithMetrics(m),
		sim.WithListener(publisher),
		sim.WithRunID(runID),
	)

	runner, err := scenario.NewRunner(cfg.Simulation, engine, logger)
	if err != nil {
		return err
	}

	servers := startServers(cfg.Server, runID, publisher, m, reg, logger)
	defer shutdown(servers, logger)

	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("run summary",
		zap.String("scenario", res.Scenario),
		zap.Int("ticks", res.TicksRun),
		zap.Bool("event_fired", res.EventFired),
		zap.Int("event_tick", res.EventTick),
		zap.Float64("final_price", res.FinalPrice),
		zap.Int("price_points", len(res.PriceHistory)),
	)
	for _, acct := range engine.Accounts() {
		if acct.AgentID == scenario.MarketMakerID || acct.AgentID == scenario.WhaleID {
			logger.Info("account",
				zap.Uint64("agent_id", acct.AgentID),
				zap.Float64("cash", acct.Cash),
				zap.Float64("inventory", acct.Inventory),
			)
		}
	}

	if len(servers) > 0 && cfg.Server.Serve && !res.Interrupted {
		logger.Info("run complete, serving until interrupted")
		<-ctx.Done()
	}
	return nil
}

// startServers starts the inspection API when Port is set and the /metrics
// endpoint when MetricsPort is set. Each is independent of the other.
func startServers(sc config.Server, runID string, publisher *marketdata.Publisher, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) []*http.Server {
	var servers []*http.Server

	if sc.Port != "" {
		gin.SetMode(gin.ReleaseMode)
		r := gin.New()
		r.Use(gin.Recovery(), m.GinMiddleware())

		h := handler.NewHandler(runID, publisher, logger)
		h.RegisterRoutes(r)

		c := cors.New(cors.Options{
			AllowedOrigins: []string{sc.CORSOrigin},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		})

		servers = append(servers, &http.Server{
			Addr:    ":" + sc.Port,
			Handler: c.Handler(r),
		})
	}

	if sc.MetricsPort != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{
			Addr:    ":" + sc.MetricsPort,
			Handler: metricsMux,
		})
	}

	for _, s := range servers {
		go func(s *http.Server) {
			logger.Info("http server listening", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.String("addr", s.Addr), zap.Error(err))
			}
		}(s)
	}
	return servers
}

func shutdown(servers []*http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logger.Warn("http server shutdown error", zap.String("addr", s.Addr), zap.Error(err))
		}
	}
	logger.Info("polysim stopped")
}
