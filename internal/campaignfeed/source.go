// Package campaignfeed fetches raw airdrop campaigns from external sources.
package campaignfeed

import (
	"context"
	"log"

	"airdrop-optimizer/internal/domain"
)

// Source produces raw campaign candidates. An empty result is valid.
type Source interface {
	Fetch(ctx context.Context) ([]domain.RawCampaign, error)
}

// Static is a fixed list of campaigns.
type Static []domain.RawCampaign

// Fetch returns a copy of the list.
func (s Static) Fetch(context.Context) ([]domain.RawCampaign, error) {
	return append([]domain.RawCampaign(nil), s...), nil
}

// DefaultCampaigns is served when the primary source is unavailable.
var DefaultCampaigns = Static{
	{Token: "ABC", VolumeRequired: 1000, Reward: 50},
	{Token: "XYZ", VolumeRequired: 500, Reward: 20},
}

type fallback struct {
	primary  Source
	fallback Source
	logger   *log.Logger
}

// WithFallback returns a Source that serves fb whenever primary fails.
func WithFallback(primary, fb Source, logger *log.Logger) Source {
	if logger == nil {
		logger = log.Default()
	}
	return &fallback{primary: primary, fallback: fb, logger: logger}
}

func (f *fallback) Fetch(ctx context.Context) ([]domain.RawCampaign, error) {
	campaigns, err := f.primary.Fetch(ctx)
	if err == nil {
		return campaigns, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.logger.Printf("campaign source failed, using fallback: %v", err)
	return f.fallback.Fetch(ctx)
}
