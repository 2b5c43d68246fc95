package domain

import "time"

// TradeAction is the kind of order an agent executed.
type TradeAction string

const (
	TradeActionBuy      TradeAction = "BUY"
	TradeActionSell     TradeAction = "SELL"
	TradeActionStopLoss TradeAction = "STOP_LOSS"
)

// Trade is an immutable record of one simulated order.
// Corresponds to agent_trades table.
type Trade struct {
	AgentID     string      `json:"agent_id"`
	Seq         int         `json:"seq"`          // position in the agent's trade log, from 1
	TimestampMs int64       `json:"timestamp_ms"` // unix ms
	Action      TradeAction `json:"action"`
	Price       float64     `json:"price"`  // executed price, slippage applied
	Amount      float64     `json:"amount"` // token units
	Success     bool        `json:"success"`
	Profit      float64     `json:"profit"` // profit/loss delta
}

// Notional returns price * amount.
func (t Trade) Notional() float64 {
	return t.Price * t.Amount
}

// TradingMetricsSummary is the roll-up of an agent's trade log.
// Written once per agent to trading_metrics.
type TradingMetricsSummary struct {
	AgentID          string      `json:"agent_id"`
	Token            string      `json:"token"`
	TotalTrades      int         `json:"total_trades"`
	SuccessfulTrades int         `json:"successful_trades"`
	FailedTrades     int         `json:"failed_trades"`
	SuccessRate      float64     `json:"success_rate"` // percent, 2 dp
	ProfitLoss       float64     `json:"profit_loss"`  // 2 dp
	TradedVolume     float64     `json:"traded_volume"`
	DurationSeconds  float64     `json:"duration_seconds"`
	FinalStatus      AgentStatus `json:"final_status"`
	StartedAt        time.Time   `json:"started_at"`
	EndedAt          time.Time   `json:"ended_at"`
}
