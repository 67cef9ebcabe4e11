package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nathanyu/polysim/internal/agent"
	"github.com/nathanyu/polysim/internal/config"
	"github.com/nathanyu/polysim/internal/domain"
	"github.com/nathanyu/polysim/internal/logging"
	"github.com/nathanyu/polysim/internal/sim"
)

// Fixed agent ids and starting balances.
const (
	MarketMakerID    uint64 = 1
	FirstNoiseID     uint64 = 100
	WhaleID          uint64 = 999
	marketMakerCash         = 1_000_000.0
	marketMakerStock        = 10_000.0
	noiseCash               = 10_000.0
	noiseStock              = 100.0
)

var ErrUnknownScenario = errors.New("unknown scenario")

// Result summarizes a finished scenario run.
type Result struct {
	Scenario     string
	TicksRun     int
	EventTick    int
	EventFired   bool
	FinalPrice   float64
	PriceHistory []domain.PricePoint
	Interrupted  bool
}

// Runner drives one scenario against a coordinator one tick at a time and
// injects the scenario's event between ticks.
type Runner struct {
	cfg     config.Simulation
	engine  *sim.Engine
	tracker *agent.PriceTracker
	maker   *agent.MarketMaker
	logger  *zap.Logger

	history []domain.PricePoint
	fired   bool
}

// NewRunner registers the scenario's starting population on engine.
func NewRunner(cfg config.Simulation, engine *sim.Engine, logger *zap.Logger) (*Runner, error) {
	switch cfg.Scenario {
	case config.ScenarioBaseline, config.ScenarioFlashCrash, config.ScenarioRally, config.ScenarioLiquidityCrunch:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, cfg.Scenario)
	}

	r := &Runner{
		cfg:     cfg,
		engine:  engine,
		tracker: agent.NewPriceTracker(agent.DefaultReferencePrice),
		logger:  logging.OrNop(logger).Named("scenario").With(zap.String("scenario", cfg.Scenario)),
	}

	r.maker = agent.NewMarketMaker(MarketMakerID, marketMakerCash, marketMakerStock, r.tracker)
	if cfg.Scenario == config.ScenarioLiquidityCrunch {
		r.maker.CrunchTick = cfg.WhaleTick
	}
	if err := engine.Register(r.maker); err != nil {
		return nil, fmt.Errorf("register market maker: %w", err)
	}

	for i := range cfg.NoiseTraders {
		id := FirstNoiseID + uint64(i)
		nt := agent.NewNoiseTrader(id, noiseCash, noiseStock, r.tracker, cfg.Seed+int64(id))
		if err := engine.Register(nt); err != nil {
			return nil, fmt.Errorf("register noise trader %d: %w", id, err)
		}
	}

	return r, nil
}

// Tracker returns the shared price tracker.
func (r *Runner) Tracker() *agent.PriceTracker {
	return r.tracker
}

// Run executes the configured number of ticks. Cancelling ctx stops the run
// between ticks; a tick that has started always completes.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var ticker *time.Ticker
	if r.cfg.TickInterval > 0 {
		ticker = time.NewTicker(r.cfg.TickInterval)
		defer ticker.Stop()
	}

	res := Result{Scenario: r.cfg.Scenario, EventTick: r.cfg.WhaleTick}

	r.logger.Info("simulation started",
		zap.Int("ticks", r.cfg.Ticks),
		zap.Int("noise_traders", r.cfg.NoiseTraders),
		zap.Int64("seed", r.cfg.Seed),
	)

	for t := range r.cfg.Ticks {
		if err := ctx.Err(); err != nil {
			res.Interrupted = true
			break
		}
		if ticker != nil && t > 0 {
			select {
			case <-ctx.Done():
				res.Interrupted = true
			case <-ticker.C:
			}
			if res.Interrupted {
				break
			}
		}

		if t == r.cfg.WhaleTick && r.hasEvent() && !r.fired {
			if err := r.fireEvent(); err != nil {
				return res, err
			}
		}

		r.engine.Run(1)
		res.TicksRun++

		price := r.tracker.Price()
		r.history = append(r.history, domain.PricePoint{Tick: r.engine.Tick(), Price: price})

		if r.cfg.ProgressEvery > 0 && t%r.cfg.ProgressEvery == 0 {
			r.logger.Info("progress", zap.Int("tick", t), zap.Float64("price", price))
		}
	}

	res.EventFired = r.fired
	res.FinalPrice = r.tracker.Price()
	res.PriceHistory = append([]domain.PricePoint(nil), r.history...)

	r.logger.Info("simulation complete",
		zap.Int("ticks_run", res.TicksRun),
		zap.Float64("final_price", res.FinalPrice),
		zap.Uint64("orders", r.engine.OrdersPlaced()),
		zap.Bool("interrupted", res.Interrupted),
	)
	return res, nil
}

// hasEvent reports whether the scenario injects anything at the event tick.
func (r *Runner) hasEvent() bool {
	return r.cfg.Scenario != config.ScenarioBaseline
}

// fireEvent applies the scenario's one-off event.
func (r *Runner) fireEvent() error {
	qty := r.cfg.WhaleQty

	switch r.cfg.Scenario {
	case config.ScenarioFlashCrash:
		r.logger.Info("event: flash crash, whale selling", zap.Float64("quantity", qty))
		r.fired = true
		return r.addWhale(agent.NewWhale(WhaleID, 0, qty, domain.SideSell, qty, r.tracker))
	case config.ScenarioRally:
		r.logger.Info("event: market rally, whale buying", zap.Float64("quantity", qty))
		r.fired = true
		return r.addWhale(agent.NewWhale(WhaleID, qty*agent.AggressiveBuyPrice, 0, domain.SideBuy, qty, r.tracker))
	case config.ScenarioLiquidityCrunch:
		r.logger.Info("event: liquidity crunch, market maker withdraws")
		r.fired = true
	}
	return nil
}

func (r *Runner) addWhale(w *agent.Whale) error {
	if err := r.engine.Register(w); err != nil {
		return fmt.Errorf("register whale: %w", err)
	}
	return nil
}
