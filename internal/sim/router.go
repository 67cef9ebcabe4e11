package sim

import (
	"go.uber.org/zap"

	"github.com/nathanyu/polysim/internal/domain"
)

// router is the order placement handle bound to one agent at registration.
type router struct {
	engine *Engine
	member *member
}

// PlaceLimitOrder implements agent.Placer.
func (r *router) PlaceLimitOrder(side domain.Side, price, quantity float64) {
	r.engine.route(domain.Order{
		AgentID:  r.member.agent.ID(),
		Side:     side,
		Price:    price,
		Quantity: quantity,
	})
}

// route stamps the next global order id, submits the order to the book and
// settles every trade it produced. Rejections are logged and never reach the
// agent.
func (e *Engine) route(order domain.Order) {
	order.ID = e.seq.NextOrderID()

	trades, err := e.book.AddOrder(order)
	if err != nil {
		e.metrics.ObserveRejected()
		e.logger.Warn("order rejected",
			zap.Uint64("tick", e.tick),
			zap.Uint64("order_id", order.ID),
			zap.Uint64("agent_id", order.AgentID),
			zap.Stringer("side", order.Side),
			zap.Float64("price", order.Price),
			zap.Float64("quantity", order.Quantity),
			zap.Error(err),
		)
		return
	}
	e.metrics.ObserveOrder(order.Side)

	for _, trade := range trades {
		e.settle(trade)
	}
}

// settle notifies both counterparties and moves cash and inventory. A side
// whose agent id is not registered is skipped.
func (e *Engine) settle(trade domain.Trade) {
	notional := trade.Notional()

	if buyer, ok := e.byID[trade.BuyerID]; ok {
		buyer.agent.OnTrade(trade)
		acct := buyer.agent.Account()
		acct.Cash -= notional
		acct.Inventory += trade.Quantity
	} else {
		e.logger.Debug("settlement skipped for unknown buyer", zap.Uint64("agent_id", trade.BuyerID))
	}

	if seller, ok := e.byID[trade.SellerID]; ok {
		seller.agent.OnTrade(trade)
		acct := seller.agent.Account()
		acct.Cash += notional
		acct.Inventory -= trade.Quantity
	} else {
		e.logger.Debug("settlement skipped for unknown seller", zap.Uint64("agent_id", trade.SellerID))
	}

	e.tickTrades++
	e.metrics.ObserveTrade(trade)

	event := domain.TradeEvent{
		Seq:   e.seq.NextTradeSeq(),
		Tick:  e.tick,
		Trade: trade,
	}
	for _, l := range e.listeners {
		l.OnTrade(event)
	}
}
