package agent

import (
	"math/rand"

	"github.com/nathanyu/polysim/internal/domain"
)

// Aggressive limits used to cross the whole book.
const (
	AggressiveBuyPrice  = 200.0
	AggressiveSellPrice = 1.0
)

// MarketMaker quotes both sides of the tracked price every tick.
type MarketMaker struct {
	Base
	Spread   float64
	OrderQty float64
	// CrunchTick stops quoting once the maker has seen this many ticks.
	// Zero quotes forever.
	CrunchTick int

	tracker   *PriceTracker
	tickCount int
}

// NewMarketMaker creates a market maker with a spread of 1 and size 10.
func NewMarketMaker(id uint64, cash, inventory float64, tracker *PriceTracker) *MarketMaker {
	return &MarketMaker{
		Base:     NewBase(id, cash, inventory),
		Spread:   1.0,
		OrderQty: 10.0,
		tracker:  tracker,
	}
}

// Quoting reports whether the maker is still providing liquidity.
func (m *MarketMaker) Quoting() bool {
	return m.CrunchTick <= 0 || m.tickCount < m.CrunchTick
}

func (m *MarketMaker) OnTick(_ domain.Snapshot, placer Placer) {
	m.tickCount++
	if !m.Quoting() {
		return
	}

	mid := m.tracker.Price()
	placer.PlaceLimitOrder(domain.SideBuy, mid-m.Spread, m.OrderQty)
	placer.PlaceLimitOrder(domain.SideSell, mid+m.Spread, m.OrderQty)
}

func (m *MarketMaker) OnTrade(trade domain.Trade) {
	m.tracker.Observe(trade)
}

// NoiseTrader occasionally sends a small aggressive order in a random
// direction.
type NoiseTrader struct {
	Base
	Probability float64
	OrderQty    float64

	tracker *PriceTracker
	rnd     *rand.Rand
}

// NewNoiseTrader creates a noise trader that acts on 10% of ticks. Its
// randomness is seeded explicitly so runs are reproducible.
func NewNoiseTrader(id uint64, cash, inventory float64, tracker *PriceTracker, seed int64) *NoiseTrader {
	return &NoiseTrader{
		Base:        NewBase(id, cash, inventory),
		Probability: 0.1,
		OrderQty:    1.0,
		tracker:     tracker,
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

func (n *NoiseTrader) OnTick(_ domain.Snapshot, placer Placer) {
	if n.rnd.Float64() >= n.Probability {
		return
	}
	if n.rnd.Float64() < 0.5 {
		placer.PlaceLimitOrder(domain.SideBuy, AggressiveBuyPrice, n.OrderQty)
	} else {
		placer.PlaceLimitOrder(domain.SideSell, AggressiveSellPrice, n.OrderQty)
	}
}

func (n *NoiseTrader) OnTrade(trade domain.Trade) {
	n.tracker.Observe(trade)
}

// Whale sends a single large aggressive order on its first tick.
type Whale struct {
	Base
	Side     domain.Side
	Quantity float64

	tracker *PriceTracker
	dumped  bool
}

// NewWhale creates a whale that will trade quantity on side once.
func NewWhale(id uint64, cash, inventory float64, side domain.Side, quantity float64, tracker *PriceTracker) *Whale {
	return &Whale{
		Base:     NewBase(id, cash, inventory),
		Side:     side,
		Quantity: quantity,
		tracker:  tracker,
	}
}

// Done reports whether the whale has already placed its order.
func (w *Whale) Done() bool {
	return w.dumped
}

func (w *Whale) OnTick(_ domain.Snapshot, placer Placer) {
	if w.dumped {
		return
	}
	price := AggressiveSellPrice
	if w.Side == domain.SideBuy {
		price = AggressiveBuyPrice
	}
	w.dumped = true
	placer.PlaceLimitOrder(w.Side, price, w.Quantity)
}

func (w *Whale) OnTrade(trade domain.Trade) {
	w.tracker.Observe(trade)
}
