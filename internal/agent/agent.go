package agent

import "github.com/nathanyu/polysim/internal/domain"

// Placer routes orders on behalf of one registered agent. The coordinator
// hands each agent its own Placer; orders placed through it are matched
// immediately and never return an order id to the caller.
type Placer interface {
	PlaceLimitOrder(side domain.Side, price, quantity float64)
}

// Agent is the capability set every trading participant implements.
//
// OnTick is invoked once per round with the snapshot taken at the start of the
// round. OnTrade is invoked for every trade the agent is a counterparty of,
// right after the order that produced it was matched. Account exposes the
// balances the coordinator settles; agent code should treat them as read only.
type Agent interface {
	ID() uint64
	Account() *Account
	OnTick(snapshot domain.Snapshot, placer Placer)
	OnTrade(trade domain.Trade)
}

// Account holds the cash and inventory of an agent.
type Account struct {
	Cash      float64
	Inventory float64
}

// View returns a copy of the account tagged with the agent id.
func (a *Account) View(agentID uint64) domain.AccountView {
	return domain.AccountView{
		AgentID:   agentID,
		Cash:      a.Cash,
		Inventory: a.Inventory,
	}
}

// Base carries the identity and balances shared by every agent. Concrete
// agents embed it and implement OnTick and OnTrade.
type Base struct {
	agentID uint64
	account Account
}

// NewBase creates a Base with starting balances.
func NewBase(id uint64, cash, inventory float64) Base {
	return Base{
		agentID: id,
		account: Account{Cash: cash, Inventory: inventory},
	}
}

func (b *Base) ID() uint64 { return b.agentID }

func (b *Base) Account() *Account { return &b.account }
