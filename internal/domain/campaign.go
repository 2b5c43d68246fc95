package domain

import "time"

// CampaignStatus tracks what the intake pipeline did with a campaign.
type CampaignStatus string

const (
	CampaignStatusActive       CampaignStatus = "ACTIVE"
	CampaignStatusRejected     CampaignStatus = "REJECTED"
	CampaignStatusAgentCreated CampaignStatus = "AGENT_CREATED"
)

// RawCampaign is a campaign candidate as delivered by a campaign source.
// Period and URL are optional.
type RawCampaign struct {
	Token          string   `json:"token" yaml:"token"`
	VolumeRequired float64  `json:"volume_required" yaml:"volume_required"`
	Reward         float64  `json:"reward" yaml:"reward"`
	PeriodDays     *float64 `json:"period_days,omitempty" yaml:"period_days,omitempty"`
	URL            *string  `json:"url,omitempty" yaml:"url,omitempty"`
}

// Campaign is a normalized campaign record.
// Corresponds to the campaigns table.
type Campaign struct {
	CampaignID     string         `json:"campaign_id"`     // deterministic hash
	Token          string         `json:"token"`           // upper-case symbol
	VolumeRequired float64        `json:"volume_required"` // currency units
	Reward         float64        `json:"reward"`          // currency units
	PeriodDays     float64        `json:"period_days"`
	URL            string         `json:"url,omitempty"`
	ViabilityScore *float64       `json:"viability_score,omitempty"` // nil until scored
	Status         CampaignStatus `json:"status"`
	AgentID        *string        `json:"agent_id,omitempty"` // set once, when the agent is configured
	CreatedAt      time.Time      `json:"created_at"`
}
