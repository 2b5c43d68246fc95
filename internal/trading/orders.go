package trading

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/randsrc"
)

const (
	// FillProbability is the chance a simulated order is filled.
	FillProbability = 0.95

	// StopLossProbability is the per-iteration chance the stop-loss fires.
	StopLossProbability = 0.05

	// SellProfitMin and SellProfitMax bound the profit of a filled sell as
	// a fraction of its notional.
	SellProfitMin = -0.01
	SellProfitMax = 0.02

	// amountPlaces is the precision of order amounts.
	amountPlaces = 4
)

// iterate runs one loop body: decide, quote, size, fill, stop-loss.
func (a *Agent) iterate(ctx context.Context) error {
	action, err := a.predictor.Predict(ctx, a.cfg.Token)
	if err != nil {
		return &IterationError{Stage: StagePredict, Err: err}
	}
	price, err := a.prices.Price(ctx, a.cfg.Token)
	if err != nil {
		return &IterationError{Stage: StagePrice, Err: err}
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return &IterationError{Stage: StagePrice, Err: fmt.Errorf("%w: %v", ErrInvalidPrice, price)}
	}

	a.mu.RLock()
	status, wallet, inventory := a.status, a.wallet, a.inventory
	a.mu.RUnlock()
	if status != domain.AgentStatusRunning {
		return nil
	}

	amount := roundAmount(wallet * a.cfg.PositionSize / price)

	switch {
	case action == domain.ActionBuy && amount > 0 && wallet >= amount*price*(1+a.cfg.MaxSlippage):
		a.buy(amount, price)
	case action == domain.ActionSell && amount > 0 && inventory >= amount:
		a.sell(domain.TradeActionSell, amount, price)
	default:
		a.publish(Event{Type: EventHold, Action: action})
	}

	a.mu.RLock()
	inventory = a.inventory
	a.mu.RUnlock()
	if inventory > 0 && randsrc.Chance(a.rng, StopLossProbability) {
		a.logger.Printf("stop-loss triggered, liquidating %.4f %s", inventory, a.cfg.Token)
		a.sell(domain.TradeActionStopLoss, inventory, price)
	}
	return nil
}

// buy fills at price inflated by up to MaxSlippage.
func (a *Agent) buy(amount, price float64) {
	exec := price * (1 + randsrc.Uniform(a.rng, 0, a.cfg.MaxSlippage))
	filled := randsrc.Chance(a.rng, FillProbability)

	a.commit(domain.TradeActionBuy, amount, exec, filled, 0, func() {
		cost := amount * exec
		a.wallet = math.Max(0, a.wallet-cost)
		a.inventory += amount
		a.tradedVolume += cost
	})
}

// sell fills at price deflated by up to MaxSlippage. A filled sell, stop-loss
// liquidations included, draws profit from [SellProfitMin, SellProfitMax]
// of notional.
func (a *Agent) sell(kind domain.TradeAction, amount, price float64) {
	exec := price * (1 - randsrc.Uniform(a.rng, 0, a.cfg.MaxSlippage))
	filled := randsrc.Chance(a.rng, FillProbability)

	proceeds := amount * exec
	profit := 0.0
	if filled {
		profit = proceeds * randsrc.Uniform(a.rng, SellProfitMin, SellProfitMax)
	}

	a.commit(kind, amount, exec, filled, profit, func() {
		a.wallet += proceeds
		a.inventory = math.Max(0, roundInventory(a.inventory-amount))
		a.tradedVolume += proceeds
	})
}

// commit appends the trade and, when filled, applies the state change.
// Nothing is recorded once the agent has left running.
func (a *Agent) commit(kind domain.TradeAction, amount, price float64, filled bool, profit float64, apply func()) {
	a.mu.Lock()
	if a.status != domain.AgentStatusRunning {
		a.mu.Unlock()
		return
	}
	now := a.clock.Now()
	t := &domain.Trade{
		AgentID:     a.cfg.AgentID,
		Seq:         len(a.trades) + 1,
		TimestampMs: now.UnixMilli(),
		Action:      kind,
		Price:       price,
		Amount:      amount,
		Success:     filled,
		Profit:      profit,
	}
	if filled {
		apply()
	}
	a.trades = append(a.trades, t)
	a.lastUpdate = now
	a.mu.Unlock()

	observability.RecordTrade(string(kind), filled)
	cp := *t
	a.publish(Event{Type: EventTrade, Trade: &cp})
}

func roundAmount(v float64) float64 {
	return decimal.NewFromFloat(v).Round(amountPlaces).InexactFloat64()
}

func roundInventory(v float64) float64 {
	return decimal.NewFromFloat(v).Round(8).InexactFloat64()
}
