package domain

import "time"

// RiskTier classifies how aggressively an agent trades.
type RiskTier string

const (
	RiskTierLow    RiskTier = "LOW"
	RiskTierMedium RiskTier = "MEDIUM"
	RiskTierHigh   RiskTier = "HIGH"
)

// AgentStatus is the lifecycle state of a trading agent.
type AgentStatus string

const (
	AgentStatusInitializing AgentStatus = "initializing"
	AgentStatusRunning      AgentStatus = "running"
	AgentStatusCompleted    AgentStatus = "completed"
	AgentStatusStopped      AgentStatus = "stopped"
	AgentStatusFailed       AgentStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s AgentStatus) IsTerminal() bool {
	return s == AgentStatusCompleted || s == AgentStatusStopped || s == AgentStatusFailed
}

// AgentConfig is the immutable configuration of one trading agent.
// It travels as the payload of the trading job.
type AgentConfig struct {
	AgentID      string   `json:"agent_id"`
	CampaignID   string   `json:"campaign_id"`
	Token        string   `json:"token"`
	VolumeTarget float64  `json:"volume_target"` // currency units
	Reward       float64  `json:"reward"`
	PeriodDays   float64  `json:"period_days"`
	RiskTier     RiskTier `json:"risk_tier"`

	PositionSize  float64       `json:"position_size"` // fraction of wallet per trade
	StopLoss      float64       `json:"stop_loss"`     // fraction
	TakeProfit    float64       `json:"take_profit"`   // fraction
	TradeInterval time.Duration `json:"trade_interval"`
	MaxSlippage   float64       `json:"max_slippage"` // fraction

	CreatedAt time.Time `json:"created_at"`
}

// AgentSnapshot is a read-only view of an agent's state.
type AgentSnapshot struct {
	AgentID        string      `json:"agent_id"`
	CampaignID     string      `json:"campaign_id,omitempty"`
	Token          string      `json:"token"`
	RiskTier       RiskTier    `json:"risk_tier"`
	Status         AgentStatus `json:"status"`
	Wallet         float64     `json:"wallet"`
	Inventory      float64     `json:"inventory"`
	TradedVolume   float64     `json:"traded_volume"`
	VolumeTarget   float64     `json:"volume_target"`
	Progress       float64     `json:"progress"` // percent of volume target, capped at 100
	TradesExecuted int         `json:"trades_executed"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	LastUpdate     time.Time   `json:"last_update"`
	LastError      string      `json:"last_error,omitempty"`
}
