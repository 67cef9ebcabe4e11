package sim

import (
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/nathanyu/polysim/internal/agent"
	"github.com/nathanyu/polysim/internal/domain"
	"github.com/nathanyu/polysim/internal/logging"
	"github.com/nathanyu/polysim/internal/metrics"
	"github.com/nathanyu/polysim/internal/orderbook"
	"github.com/nathanyu/polysim/internal/sequencer"
)

// DefaultSeed seeds the activation shuffle when no seed is supplied.
const DefaultSeed int64 = 1

var (
	ErrNilAgent       = errors.New("agent is nil")
	ErrDuplicateAgent = errors.New("agent id already registered")
)

// Listener observes the simulation. Callbacks run synchronously on the
// simulation loop and must not call back into the Engine.
type Listener interface {
	OnTrade(event domain.TradeEvent)
	OnTickEnd(report domain.TickReport)
}

// member is one registered agent together with its order router.
type member struct {
	agent  agent.Agent
	router *router
}

// Engine is the tick coordinator. It owns the order book and the agent
// roster, drives rounds, routes orders placed by agents into the book and
// settles the resulting trades.
//
// An Engine is single threaded: every method must be called from the same
// goroutine.
type Engine struct {
	runID     string
	book      *orderbook.OrderBook
	seq       *sequencer.Sequencer
	rng       *rand.Rand
	roster    []*member          // registration order
	byID      map[uint64]*member // agent id -> member
	tick      uint64
	logger    *zap.Logger
	metrics   *metrics.Metrics
	listeners []Listener

	tickTrades int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed seeds the activation shuffle.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewSource(seed)) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records orders, trades and ticks on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithListener adds a listener.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// WithRunID tags tick reports and log lines with a run identifier.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// New creates a coordinator with an empty book and roster.
func New(opts ...Option) *Engine {
	e := &Engine{
		book: orderbook.NewOrderBook(),
		seq:  sequencer.New(),
		byID: make(map[uint64]*member),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(DefaultSeed))
	}
	e.logger = logging.OrNop(e.logger).Named("sim")
	if e.runID != "" {
		e.logger = e.logger.With(zap.String("run_id", e.runID))
	}
	return e
}

// Register adds an agent to the roster and binds its order router for the
// rest of the run. Agent ids must be unique.
func (e *Engine) Register(a agent.Agent) error {
	if a == nil {
		return ErrNilAgent
	}
	id := a.ID()
	if _, exists := e.byID[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateAgent, id)
	}

	m := &member{agent: a}
	m.router = &router{engine: e, member: m}
	e.roster = append(e.roster, m)
	e.byID[id] = m

	e.logger.Debug("agent registered", zap.Uint64("agent_id", id), zap.Int("roster", len(e.roster)))
	return nil
}

// Run executes the given number of rounds. Each round takes one snapshot of
// the book, shuffles the roster with the engine's random source and notifies
// every agent once in that order. Orders placed during a notification are
// matched and settled before the notification returns.
func (e *Engine) Run(ticks int) {
	for range max(ticks, 0) {
		e.runTick()
	}
}

func (e *Engine) runTick() {
	e.tick++
	e.tickTrades = 0

	snapshot := e.book.Snapshot()

	order := make([]*member, len(e.roster))
	copy(order, e.roster)
	e.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, m := range order {
		m.agent.OnTick(snapshot, m.router)
	}

	e.metrics.ObserveTick(e.book.BuyBook.Depth(), e.book.SellBook.Depth())
	e.logger.Debug("tick complete",
		zap.Uint64("tick", e.tick),
		zap.Int("trades", e.tickTrades),
		zap.Int("bid_levels", e.book.BuyBook.Depth()),
		zap.Int("ask_levels", e.book.SellBook.Depth()),
	)

	if len(e.listeners) == 0 {
		return
	}
	report := domain.TickReport{
		RunID:    e.runID,
		Tick:     e.tick,
		Trades:   e.tickTrades,
		Book:     e.book.GetL2Snapshot(0),
		Accounts: e.Accounts(),
	}
	for _, l := range e.listeners {
		l.OnTickEnd(report)
	}
}

// Tick returns the number of rounds completed so far.
func (e *Engine) Tick() uint64 {
	return e.tick
}

// OrdersPlaced returns the last order id assigned.
func (e *Engine) OrdersPlaced() uint64 {
	return e.seq.CurrentInboundSeq()
}

// Agents returns the roster in registration order.
func (e *Engine) Agents() []agent.Agent {
	out := make([]agent.Agent, len(e.roster))
	for i, m := range e.roster {
		out[i] = m.agent
	}
	return out
}

// Accounts returns a copy of every agent's balances in registration order.
func (e *Engine) Accounts() []domain.AccountView {
	out := make([]domain.AccountView, len(e.roster))
	for i, m := range e.roster {
		out[i] = m.agent.Account().View(m.agent.ID())
	}
	return out
}

// Snapshot returns the aggregate price -> quantity view of the book.
func (e *Engine) Snapshot() domain.Snapshot {
	return e.book.Snapshot()
}

// Bids returns copies of the resting bid levels, highest price first.
func (e *Engine) Bids() []orderbook.Level {
	return e.book.Bids()
}

// Asks returns copies of the resting ask levels, lowest price first.
func (e *Engine) Asks() []orderbook.Level {
	return e.book.Asks()
}

// L2 returns the aggregated two-sided book limited to depth levels per side.
func (e *Engine) L2(depth int) domain.L2OrderBook {
	return e.book.GetL2Snapshot(depth)
}
