package agent

import "github.com/nathanyu/polysim/internal/domain"

// DefaultReferencePrice is the price a tracker reports before any trade.
const DefaultReferencePrice = 100.0

// PriceTracker holds the last traded price observed by a group of agents.
// It is shared by reference and only touched from the simulation loop.
type PriceTracker struct {
	price  float64
	trades int
}

// NewPriceTracker creates a tracker starting at the given reference price.
func NewPriceTracker(start float64) *PriceTracker {
	return &PriceTracker{price: start}
}

// Observe records the price of a trade.
func (p *PriceTracker) Observe(trade domain.Trade) {
	p.price = trade.Price
	p.trades++
}

// Price returns the last observed trade price.
func (p *PriceTracker) Price() float64 {
	return p.price
}

// Observed returns how many trade notifications the tracker has seen.
func (p *PriceTracker) Observed() int {
	return p.trades
}
