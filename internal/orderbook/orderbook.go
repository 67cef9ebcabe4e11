package orderbook

import (
	"container/list"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/nathanyu/polysim/internal/domain"
)

var (
	ErrUnassignedID    = errors.New("order id is not assigned")
	ErrInvalidSide     = errors.New("invalid order side")
	ErrInvalidPrice    = errors.New("price must be finite")
	ErrInvalidQuantity = errors.New("quantity must be positive and finite")
)

// bookLevel is a price level in one side of the book.
// It holds a doubly-linked list of orders at this price (FIFO).
type bookLevel struct {
	Price  float64
	Orders *list.List // of *domain.Order
}

func (l *bookLevel) totalVolume() float64 {
	var total float64
	for e := l.Orders.Front(); e != nil; e = e.Next() {
		total += e.Value.(*domain.Order).Quantity
	}
	return total
}

// Book represents one side (buy or sell) of an order book.
type Book struct {
	Side     domain.Side
	LimitMap map[float64]*bookLevel // price -> level
	prices   []float64              // best price first
}

// NewBook creates a new order book side.
func NewBook(side domain.Side) *Book {
	return &Book{
		Side:     side,
		LimitMap: make(map[float64]*bookLevel),
	}
}

// better reports whether price a has priority over price b on this side.
func (b *Book) better(a, c float64) bool {
	if b.Side == domain.SideBuy {
		return a > c
	}
	return a < c
}

// BestPrice returns the best price on this side and whether any order rests.
func (b *Book) BestPrice() (float64, bool) {
	if len(b.prices) == 0 {
		return 0, false
	}
	return b.prices[0], true
}

// HasOrders returns whether this side has any resting orders.
func (b *Book) HasOrders() bool {
	return len(b.prices) > 0
}

// Depth returns the number of price levels on this side.
func (b *Book) Depth() int {
	return len(b.prices)
}

// Volume returns the total resting quantity on this side.
func (b *Book) Volume() float64 {
	var total float64
	for _, price := range b.prices {
		total += b.LimitMap[price].totalVolume()
	}
	return total
}

// search returns the index of the first price that is not better than price.
func (b *Book) search(price float64) int {
	return sort.Search(len(b.prices), func(i int) bool {
		return !b.better(b.prices[i], price)
	})
}

// addOrder appends an order to the tail of the price level's linked list.
func (b *Book) addOrder(order *domain.Order) {
	level, exists := b.LimitMap[order.Price]
	if !exists {
		level = &bookLevel{
			Price:  order.Price,
			Orders: list.New(),
		}
		b.LimitMap[order.Price] = level

		i := b.search(order.Price)
		b.prices = append(b.prices, 0)
		copy(b.prices[i+1:], b.prices[i:])
		b.prices[i] = order.Price
	}
	level.Orders.PushBack(order)
}

// removeLevel drops an empty price level.
func (b *Book) removeLevel(price float64) {
	delete(b.LimitMap, price)
	i := b.search(price)
	if i < len(b.prices) && b.prices[i] == price {
		b.prices = append(b.prices[:i], b.prices[i+1:]...)
	}
}

// levels copies every resting order, best price first.
func (b *Book) levels() []Level {
	out := make([]Level, 0, len(b.prices))
	for _, price := range b.prices {
		lvl := b.LimitMap[price]
		orders := make([]domain.Order, 0, lvl.Orders.Len())
		for e := lvl.Orders.Front(); e != nil; e = e.Next() {
			orders = append(orders, *e.Value.(*domain.Order))
		}
		out = append(out, Level{Price: price, Orders: orders})
	}
	return out
}

// Level is a copy of one price level with its resting orders in arrival order.
type Level struct {
	Price  float64
	Orders []domain.Order
}

// Volume returns the aggregate remaining quantity at this level.
func (l Level) Volume() float64 {
	var total float64
	for _, o := range l.Orders {
		total += o.Quantity
	}
	return total
}

// OrderBook holds the full two-sided order book for a single instrument.
type OrderBook struct {
	BuyBook  *Book
	SellBook *Book
}

// NewOrderBook creates an empty order book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		BuyBook:  NewBook(domain.SideBuy),
		SellBook: NewBook(domain.SideSell),
	}
}

func (ob *OrderBook) book(side domain.Side) *Book {
	if side == domain.SideBuy {
		return ob.BuyBook
	}
	return ob.SellBook
}

// Validate checks the order against the book's input policy. The book never
// assigns ids, so a zero id is rejected.
func Validate(order domain.Order) error {
	if order.ID == 0 {
		return ErrUnassignedID
	}
	if !order.Side.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSide, int(order.Side))
	}
	if math.IsNaN(order.Price) || math.IsInf(order.Price, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, order.Price)
	}
	if !(order.Quantity > 0) || math.IsInf(order.Quantity, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, order.Quantity)
	}
	return nil
}

// AddOrder matches an incoming order against the opposite side by price-time
// priority and rests any remainder at its limit price. Trades are returned in
// the order they were executed. Invalid orders leave the book untouched.
func (ob *OrderBook) AddOrder(order domain.Order) ([]domain.Trade, error) {
	if err := Validate(order); err != nil {
		return nil, err
	}

	oppositeBook := ob.book(order.Side.Opposite())
	var trades []domain.Trade

	for order.Quantity > 0 {
		bestPrice, ok := oppositeBook.BestPrice()
		if !ok {
			break
		}
		if order.Side == domain.SideBuy && bestPrice > order.Price {
			break // ask too expensive
		}
		if order.Side == domain.SideSell && bestPrice < order.Price {
			break // bid too low
		}

		level := oppositeBook.LimitMap[bestPrice]

		// FIFO: consume from head of the linked list at this price level
		for order.Quantity > 0 && level.Orders.Len() > 0 {
			front := level.Orders.Front()
			maker := front.Value.(*domain.Order)

			matchQty := min(order.Quantity, maker.Quantity)
			order.Quantity -= matchQty
			maker.Quantity -= matchQty

			trades = append(trades, newTrade(&order, maker, matchQty))

			if maker.Quantity <= 0 {
				level.Orders.Remove(front)
			}
		}

		if level.Orders.Len() == 0 {
			oppositeBook.removeLevel(bestPrice)
		}
	}

	if order.Quantity > 0 {
		ob.book(order.Side).addOrder(&order)
	}

	return trades, nil
}

// newTrade builds a trade at the maker's (resting) price.
func newTrade(taker, maker *domain.Order, qty float64) domain.Trade {
	trade := domain.Trade{
		Price:    maker.Price,
		Quantity: qty,
	}
	if taker.Side == domain.SideBuy {
		trade.BuyerID, trade.SellerID = taker.AgentID, maker.AgentID
	} else {
		trade.BuyerID, trade.SellerID = maker.AgentID, taker.AgentID
	}
	return trade
}

// Bids returns copies of the bid levels, highest price first.
func (ob *OrderBook) Bids() []Level {
	return ob.BuyBook.levels()
}

// Asks returns copies of the ask levels, lowest price first.
func (ob *OrderBook) Asks() []Level {
	return ob.SellBook.levels()
}

// BestBid returns the highest resting bid price.
func (ob *OrderBook) BestBid() (float64, bool) {
	return ob.BuyBook.BestPrice()
}

// BestAsk returns the lowest resting ask price.
func (ob *OrderBook) BestAsk() (float64, bool) {
	return ob.SellBook.BestPrice()
}

// Snapshot aggregates resting quantity per price across both sides, ordered by
// ascending price. An empty book yields an empty snapshot.
func (ob *OrderBook) Snapshot() domain.Snapshot {
	agg := make(map[float64]float64, len(ob.BuyBook.LimitMap)+len(ob.SellBook.LimitMap))
	for _, b := range []*Book{ob.BuyBook, ob.SellBook} {
		for price, level := range b.LimitMap {
			if vol := level.totalVolume(); vol > 0 {
				agg[price] += vol
			}
		}
	}

	snapshot := make(domain.Snapshot, 0, len(agg))
	for price, qty := range agg {
		snapshot = append(snapshot, domain.PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Price < snapshot[j].Price })
	return snapshot
}

// GetL2Snapshot returns aggregated levels for each side, best first.
// A depth of zero or less returns every level.
func (ob *OrderBook) GetL2Snapshot(depth int) domain.L2OrderBook {
	return domain.L2OrderBook{
		Bids: aggregateLevels(ob.BuyBook, depth),
		Asks: aggregateLevels(ob.SellBook, depth),
	}
}

func aggregateLevels(book *Book, depth int) []domain.PriceLevel {
	prices := book.prices
	if depth > 0 && len(prices) > depth {
		prices = prices[:depth]
	}

	levels := make([]domain.PriceLevel, len(prices))
	for i, price := range prices {
		levels[i] = domain.PriceLevel{
			Price:    price,
			Quantity: book.LimitMap[price].totalVolume(),
		}
	}
	return levels
}
