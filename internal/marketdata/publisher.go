package marketdata

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nathanyu/polysim/internal/domain"
	"github.com/nathanyu/polysim/internal/logging"
)

const (
	ringBufferCapacity = 100
	maxTradeLog        = 10_000
	defaultCandleTicks = 10
)

// RingBuffer is a fixed-size circular buffer of candlesticks.
type RingBuffer struct {
	data  [ringBufferCapacity]*domain.Candlestick
	head  int // next write position
	count int
}

// Push adds a candlestick to the ring buffer.
func (rb *RingBuffer) Push(c *domain.Candlestick) {
	rb.data[rb.head] = c
	rb.head = (rb.head + 1) % ringBufferCapacity
	if rb.count < ringBufferCapacity {
		rb.count++
	}
}

// GetAll returns all candlesticks in chronological order.
func (rb *RingBuffer) GetAll() []*domain.Candlestick {
	return rb.GetRecent(rb.count)
}

// GetRecent returns the N most recent candlesticks.
func (rb *RingBuffer) GetRecent(n int) []*domain.Candlestick {
	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}

	result := make([]*domain.Candlestick, n)
	start := (rb.head - n + ringBufferCapacity) % ringBufferCapacity
	for i := range n {
		idx := (start + i) % ringBufferCapacity
		result[i] = rb.data[idx]
	}
	return result
}

// Publisher listens to the simulation loop and keeps market data for readers
// on other goroutines: the trade log, tick-bucketed candles, the price history
// and the latest book and account views. It never touches the live book.
type Publisher struct {
	mu sync.RWMutex

	candleTicks uint64
	candles     RingBuffer
	current     *domain.Candlestick // building candle, nil until a trade

	trades     []domain.TradeEvent
	tradeLimit int // readers see at most this many; storage grows to 2x before trimming
	lastPrice  float64
	hasPrice   bool
	history    []domain.PricePoint

	latest domain.TickReport

	hub    *Hub[domain.TradeEvent]
	logger *zap.Logger
}

// NewPublisher creates a publisher that closes a candle every candleTicks
// ticks. A non-positive value uses the default of 10.
func NewPublisher(candleTicks int, logger *zap.Logger) *Publisher {
	if candleTicks <= 0 {
		candleTicks = defaultCandleTicks
	}
	return &Publisher{
		candleTicks: uint64(candleTicks),
		tradeLimit:  maxTradeLog,
		hub:         NewHub[domain.TradeEvent](),
		logger:      logging.OrNop(logger).Named("marketdata"),
	}
}

// OnTrade records a trade and fans it out to stream subscribers.
func (p *Publisher) OnTrade(event domain.TradeEvent) {
	p.mu.Lock()
	p.trades = append(p.trades, event)
	if len(p.trades) >= 2*p.tradeLimit {
		p.trades = append(make([]domain.TradeEvent, 0, 2*p.tradeLimit), p.trades[len(p.trades)-p.tradeLimit:]...)
	}
	p.lastPrice = event.Trade.Price
	p.hasPrice = true
	p.updateCandle(event)
	p.mu.Unlock()

	p.hub.Broadcast(event)
}

// updateCandle folds a trade into the building candle.
func (p *Publisher) updateCandle(event domain.TradeEvent) {
	price, qty := event.Trade.Price, event.Trade.Quantity

	c := p.current
	if c == nil {
		start := ((event.Tick - 1) / p.candleTicks) * p.candleTicks
		p.current = &domain.Candlestick{
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    qty,
			Trades:    1,
			StartTick: start + 1,
			EndTick:   start + p.candleTicks,
		}
		return
	}

	c.High = max(c.High, price)
	c.Low = min(c.Low, price)
	c.Close = price
	c.Volume += qty
	c.Trades++
}

// OnTickEnd stores the tick report, extends the price history and closes the
// building candle at the end of its tick range.
func (p *Publisher) OnTickEnd(report domain.TickReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest = report
	if p.hasPrice {
		p.history = append(p.history, domain.PricePoint{Tick: report.Tick, Price: p.lastPrice})
	}

	if report.Tick%p.candleTicks == 0 && p.current != nil {
		p.candles.Push(p.current)
		p.logger.Debug("candle closed",
			zap.Uint64("end_tick", p.current.EndTick),
			zap.Float64("close", p.current.Close),
			zap.Float64("volume", p.current.Volume),
		)
		p.current = nil
	}
}

// GetCandles returns up to count recent candles, including the building one.
func (p *Publisher) GetCandles(count int) []*domain.Candlestick {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := p.candles.GetRecent(count)
	if p.current != nil {
		c := *p.current
		result = append(result, &c)
	}
	return result
}

// GetTrades returns logged trades with a sequence number greater than
// sinceSeq. A non-zero agentID keeps only trades that agent took part in.
func (p *Publisher) GetTrades(agentID, sinceSeq uint64) []domain.TradeEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []domain.TradeEvent
	for _, ev := range p.trades[max(len(p.trades)-p.tradeLimit, 0):] {
		if ev.Seq <= sinceSeq {
			continue
		}
		if agentID != 0 && ev.Trade.BuyerID != agentID && ev.Trade.SellerID != agentID {
			continue
		}
		result = append(result, ev)
	}
	return result
}

// LastPrice returns the most recent trade price.
func (p *Publisher) LastPrice() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPrice, p.hasPrice
}

// PriceHistory returns the last trade price at the end of every tick since
// the first trade.
func (p *Publisher) PriceHistory() []domain.PricePoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.PricePoint(nil), p.history...)
}

// Latest returns the most recent tick report.
func (p *Publisher) Latest() domain.TickReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Book returns the book from the latest tick report, limited to depth levels
// per side. A depth of zero or less returns every level.
func (p *Publisher) Book(depth int) domain.L2OrderBook {
	p.mu.RLock()
	defer p.mu.RUnlock()

	book := domain.L2OrderBook{
		Bids: truncate(p.latest.Book.Bids, depth),
		Asks: truncate(p.latest.Book.Asks, depth),
	}
	return book
}

// Snapshot merges the latest book into a single ascending price -> quantity
// view.
func (p *Publisher) Snapshot() domain.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bids, asks := p.latest.Book.Bids, p.latest.Book.Asks
	snap := make(domain.Snapshot, 0, len(bids)+len(asks))
	for i := len(bids) - 1; i >= 0; i-- {
		snap = append(snap, bids[i])
	}
	return append(snap, asks...)
}

// Subscribe registers a trade stream subscriber.
func (p *Publisher) Subscribe(buffer int) *Subscription[domain.TradeEvent] {
	return p.hub.Subscribe(buffer)
}

// Unsubscribe removes a trade stream subscriber and closes its channel.
func (p *Publisher) Unsubscribe(sub *Subscription[domain.TradeEvent]) {
	p.hub.Unsubscribe(sub)
}

// Subscribers returns the number of live trade stream subscribers.
func (p *Publisher) Subscribers() int {
	return p.hub.Len()
}

func truncate(levels []domain.PriceLevel, depth int) []domain.PriceLevel {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	return append([]domain.PriceLevel{}, levels...)
}
