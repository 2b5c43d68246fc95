// Package risk derives the trading configuration of an agent from the
// viability score of its campaign.
package risk

import (
	"errors"
	"fmt"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/viability"
)

// Tier thresholds, inclusive.
const (
	LowRiskMinScore    = 8.0
	MediumRiskMinScore = 6.0
)

// ErrInvalidRiskTier is returned for a tier outside LOW/MEDIUM/HIGH.
var ErrInvalidRiskTier = errors.New("invalid risk tier")

// Params is the fixed trading parameter set of a tier.
type Params struct {
	PositionSize  float64
	StopLoss      float64
	TakeProfit    float64
	TradeInterval time.Duration
	MaxSlippage   float64
}

var tierParams = map[domain.RiskTier]Params{
	domain.RiskTierLow: {
		PositionSize:  0.05,
		StopLoss:      0.02,
		TakeProfit:    0.01,
		TradeInterval: 2 * time.Second,
		MaxSlippage:   0.001,
	},
	domain.RiskTierMedium: {
		PositionSize:  0.10,
		StopLoss:      0.05,
		TakeProfit:    0.02,
		TradeInterval: 1 * time.Second,
		MaxSlippage:   0.002,
	},
	domain.RiskTierHigh: {
		PositionSize:  0.20,
		StopLoss:      0.10,
		TakeProfit:    0.05,
		TradeInterval: 500 * time.Millisecond,
		MaxSlippage:   0.005,
	},
}

// TierForScore maps a viability score to a risk tier.
func TierForScore(score float64) domain.RiskTier {
	switch {
	case score >= LowRiskMinScore:
		return domain.RiskTierLow
	case score >= MediumRiskMinScore:
		return domain.RiskTierMedium
	default:
		return domain.RiskTierHigh
	}
}

// ParamsForTier returns the parameter table row for tier.
func ParamsForTier(tier domain.RiskTier) (Params, error) {
	p, ok := tierParams[tier]
	if !ok {
		return Params{}, fmt.Errorf("%w: %q", ErrInvalidRiskTier, tier)
	}
	return p, nil
}

// AgentID derives an agent id from token and creation time. A non-empty
// campaign id is appended (first 8 chars) so same-token campaigns created
// in the same second do not collide.
func AgentID(token string, createdAt time.Time, campaignID string) string {
	id := fmt.Sprintf("trader-%s-%d", token, createdAt.Unix())
	if campaignID != "" {
		if len(campaignID) > 8 {
			campaignID = campaignID[:8]
		}
		id += "-" + campaignID
	}
	return id
}

// Configure builds the agent configuration for a scored campaign.
func Configure(c domain.Campaign, now time.Time) (domain.AgentConfig, error) {
	if c.ViabilityScore == nil {
		return domain.AgentConfig{}, fmt.Errorf("%w: campaign %s is not scored", viability.ErrInvalidCampaign, c.CampaignID)
	}

	tier := TierForScore(*c.ViabilityScore)
	p, err := ParamsForTier(tier)
	if err != nil {
		return domain.AgentConfig{}, err
	}

	return domain.AgentConfig{
		AgentID:       AgentID(c.Token, now, c.CampaignID),
		CampaignID:    c.CampaignID,
		Token:         c.Token,
		VolumeTarget:  c.VolumeRequired,
		Reward:        c.Reward,
		PeriodDays:    c.PeriodDays,
		RiskTier:      tier,
		PositionSize:  p.PositionSize,
		StopLoss:      p.StopLoss,
		TakeProfit:    p.TakeProfit,
		TradeInterval: p.TradeInterval,
		MaxSlippage:   p.MaxSlippage,
		CreatedAt:     now.UTC(),
	}, nil
}
