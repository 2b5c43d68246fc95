// Package viability scores campaigns by expected return after friction.
package viability

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"airdrop-optimizer/internal/domain"
)

const (
	// DefaultPeriodDays is used when a campaign omits its period.
	DefaultPeriodDays = 7.0

	// FrictionRate is the flat cost assumed per unit of traded volume.
	FrictionRate = 0.001

	// MaxScore is the upper bound of the score scale.
	MaxScore = 10.0

	// Threshold is the minimum score for a campaign to get an agent.
	Threshold = 5.0
)

// ErrInvalidCampaign is returned for campaigns with missing or invalid economic fields.
var ErrInvalidCampaign = errors.New("invalid campaign")

// Normalize turns a raw candidate into a Campaign, applying the default
// period. The returned campaign has no ID and no score.
func Normalize(raw domain.RawCampaign) (domain.Campaign, error) {
	token := strings.ToUpper(strings.TrimSpace(raw.Token))
	if token == "" {
		return domain.Campaign{}, fmt.Errorf("%w: missing token", ErrInvalidCampaign)
	}

	period := DefaultPeriodDays
	if raw.PeriodDays != nil {
		period = *raw.PeriodDays
	}

	url := ""
	if raw.URL != nil {
		url = strings.TrimSpace(*raw.URL)
	}

	c := domain.Campaign{
		Token:          token,
		VolumeRequired: raw.VolumeRequired,
		Reward:         raw.Reward,
		PeriodDays:     period,
		URL:            url,
		Status:         domain.CampaignStatusActive,
	}
	if err := validate(c); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// Score computes the viability score of c in [0, 10], rounded to one decimal.
//
//	cost  = V * 0.001
//	daily = (R - cost) / P
//	score = clamp(daily * P / R * 10, 0, 10)
func Score(c domain.Campaign) (float64, error) {
	if err := validate(c); err != nil {
		return 0, err
	}

	v, r, p := c.VolumeRequired, c.Reward, c.PeriodDays
	cost := v * FrictionRate
	daily := (r - cost) / p
	raw := daily * p / r * MaxScore

	score := math.Max(0, math.Min(MaxScore, raw))
	return decimal.NewFromFloat(score).Round(1).InexactFloat64(), nil
}

// IsViable reports whether score clears Threshold.
func IsViable(score float64) bool {
	return score >= Threshold
}

func validate(c domain.Campaign) error {
	if !finite(c.VolumeRequired) || !finite(c.Reward) || !finite(c.PeriodDays) {
		return fmt.Errorf("%w: non-finite field", ErrInvalidCampaign)
	}
	if c.Reward <= 0 {
		return fmt.Errorf("%w: reward must be positive, got %v", ErrInvalidCampaign, c.Reward)
	}
	if c.PeriodDays <= 0 {
		return fmt.Errorf("%w: period must be positive, got %v", ErrInvalidCampaign, c.PeriodDays)
	}
	if c.VolumeRequired < 0 {
		return fmt.Errorf("%w: volume must not be negative, got %v", ErrInvalidCampaign, c.VolumeRequired)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
