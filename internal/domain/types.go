package domain

import (
	"fmt"
	"sort"
)

// Side represents the order side (buy or sell).
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// String returns the lower-case wire name of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Valid reports whether s is one of the two defined sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// MarshalText encodes the side as "buy" or "sell".
func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes "buy" or "sell".
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "buy":
		*s = SideBuy
	case "sell":
		*s = SideSell
	default:
		return fmt.Errorf("unknown side %q", string(text))
	}
	return nil
}

// Order represents a limit order. ID is zero until the coordinator assigns it.
// Quantity is the remaining unfilled amount and only ever decreases.
type Order struct {
	ID       uint64  `json:"id"`
	AgentID  uint64  `json:"agent_id"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Trade is a completed match between a buyer and a seller.
// Price is always the resting order's price.
type Trade struct {
	BuyerID  uint64  `json:"buyer_id"`
	SellerID uint64  `json:"seller_id"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Notional returns price * quantity.
func (t Trade) Notional() float64 {
	return t.Price * t.Quantity
}

// PriceLevel represents an aggregated price level.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Snapshot is the aggregate resting quantity per price across both sides of
// the book, ordered by ascending price.
type Snapshot []PriceLevel

// Quantity returns the aggregate quantity at price, if any rests there.
func (s Snapshot) Quantity(price float64) (float64, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Price >= price })
	if i < len(s) && s[i].Price == price {
		return s[i].Quantity, true
	}
	return 0, false
}

// Map returns the snapshot as an unordered price -> quantity map.
func (s Snapshot) Map() map[float64]float64 {
	m := make(map[float64]float64, len(s))
	for _, lvl := range s {
		m[lvl.Price] = lvl.Quantity
	}
	return m
}

// Total returns the sum of all aggregate quantities.
func (s Snapshot) Total() float64 {
	var total float64
	for _, lvl := range s {
		total += lvl.Quantity
	}
	return total
}

// L2OrderBook represents an aggregated two-sided view of the book.
// Bids are ordered highest first, asks lowest first.
type L2OrderBook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// Candlestick represents OHLCV data for a range of ticks.
type Candlestick struct {
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int     `json:"trades"`
	StartTick uint64  `json:"start_tick"`
	EndTick   uint64  `json:"end_tick"`
}

// TradeEvent wraps a trade with the tick it happened on and its outbound
// sequence number.
type TradeEvent struct {
	Seq   uint64 `json:"seq"`
	Tick  uint64 `json:"tick"`
	Trade Trade  `json:"trade"`
}

// AccountView is a point-in-time copy of one agent's balances.
type AccountView struct {
	AgentID   uint64  `json:"agent_id"`
	Cash      float64 `json:"cash"`
	Inventory float64 `json:"inventory"`
}

// TickReport summarizes the state of the simulation at the end of a tick.
type TickReport struct {
	RunID    string        `json:"run_id"`
	Tick     uint64        `json:"tick"`
	Trades   int           `json:"trades"`
	Book     L2OrderBook   `json:"book"`
	Accounts []AccountView `json:"accounts"`
}

// PricePoint is the last traded price observed at the end of a tick.
type PricePoint struct {
	Tick  uint64  `json:"tick"`
	Price float64 `json:"price"`
}
