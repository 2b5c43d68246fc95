package prediction

import (
	"context"

	"airdrop-optimizer/internal/advisory"
	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/indicators"
	"airdrop-optimizer/internal/market"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/randsrc"
)

// SourceName identifies a signal source.
type SourceName string

const (
	SourceTechnical     SourceName = "technical"
	SourceSentiment     SourceName = "sentiment"
	SourceForecast      SourceName = "forecast"
	SourceComprehensive SourceName = "comprehensive"
)

// ForecastWindow is the number of recent prices sent to the forecast advisor.
const ForecastWindow = 10

// forecastMoveThreshold is the projected relative move that triggers BUY/SELL.
const forecastMoveThreshold = 0.01

// Signal produces one action from a market snapshot.
type Signal interface {
	// Vote returns the source's action. It never fails; sources with an
	// external dependency fall back locally.
	Vote(ctx context.Context, in *SignalInput) Vote

	// Name returns the source identifier.
	Name() SourceName
}

// SignalInput holds the market snapshot a signal decides on.
type SignalInput struct {
	Token     string
	Prices    []float64 // oldest first
	Sentiment float64
}

// Vote is one source's contribution to a decision.
type Vote struct {
	Source     SourceName    `json:"source"`
	Action     domain.Action `json:"action"`
	Weight     float64       `json:"weight"`
	Confidence float64       `json:"confidence,omitempty"`
	Fallback   bool          `json:"fallback,omitempty"` // advisory failed, local rule used
}

// technicalSignal votes on moving-average crossover and RSI.
type technicalSignal struct{}

func (technicalSignal) Name() SourceName { return SourceTechnical }

func (s technicalSignal) Vote(_ context.Context, in *SignalInput) Vote {
	return Vote{Source: s.Name(), Action: TechnicalAction(in.Prices)}
}

// TechnicalAction applies the MA(5)/MA(20)/RSI(14) decision table.
// Fewer than 20 prices yields HOLD.
func TechnicalAction(prices []float64) domain.Action {
	short, err := indicators.SMA(prices, indicators.ShortMAPeriod)
	if err != nil {
		return domain.ActionHold
	}
	long, err := indicators.SMA(prices, indicators.LongMAPeriod)
	if err != nil {
		return domain.ActionHold
	}
	rsi := indicators.RSI(prices, indicators.RSIPeriod)

	switch {
	case short > long && rsi < indicators.RSIOverbought:
		return domain.ActionBuy
	case short < long && rsi > indicators.RSIOversold:
		return domain.ActionSell
	case rsi > indicators.RSIOverbought:
		return domain.ActionSell
	case rsi < indicators.RSIOversold:
		return domain.ActionBuy
	default:
		return domain.ActionHold
	}
}

// sentimentSignal asks the advisor about synthetic headlines, falling back
// to the sentiment threshold rule.
type sentimentSignal struct {
	advisor advisory.Client
}

func (sentimentSignal) Name() SourceName { return SourceSentiment }

func (s sentimentSignal) Vote(ctx context.Context, in *SignalInput) Vote {
	headlines := market.Headlines(in.Token, in.Sentiment)
	rec, err := s.advisor.Sentiment(ctx, in.Token, headlines)
	if err != nil {
		observability.RecordAdvisoryFallback(string(s.Name()))
		return Vote{Source: s.Name(), Action: SentimentAction(in.Sentiment), Fallback: true}
	}
	return Vote{Source: s.Name(), Action: rec.Action}
}

// SentimentAction maps a sentiment score to an action: > 0.3 BUY, < -0.3 SELL.
func SentimentAction(score float64) domain.Action {
	switch {
	case score > market.SentimentBuyThreshold:
		return domain.ActionBuy
	case score < market.SentimentSellThreshold:
		return domain.ActionSell
	default:
		return domain.ActionHold
	}
}

// forecastSignal asks the advisor for a short-horizon forecast, falling
// back to perturbed last-delta extrapolation.
type forecastSignal struct {
	advisor advisory.Client
	rng     randsrc.Source
}

func (forecastSignal) Name() SourceName { return SourceForecast }

func (s forecastSignal) Vote(ctx context.Context, in *SignalInput) Vote {
	recent := in.Prices
	if len(recent) > ForecastWindow {
		recent = recent[len(recent)-ForecastWindow:]
	}
	rec, err := s.advisor.Forecast(ctx, in.Token, recent)
	if err != nil {
		observability.RecordAdvisoryFallback(string(s.Name()))
		return Vote{Source: s.Name(), Action: ForecastAction(in.Prices, s.rng), Fallback: true}
	}
	return Vote{Source: s.Name(), Action: rec.Action}
}

// ForecastAction projects the last relative price change, perturbed by
// U(-50%, +50%), and thresholds the projected move at 1%.
// Fewer than 3 prices yields HOLD.
func ForecastAction(prices []float64, rng randsrc.Source) domain.Action {
	if len(prices) < 3 {
		return domain.ActionHold
	}
	last, prev := prices[len(prices)-1], prices[len(prices)-2]
	if prev == 0 {
		return domain.ActionHold
	}

	trend := (last - prev) / prev
	move := trend * (1 + randsrc.Uniform(rng, -0.5, 0.5))

	switch {
	case move > forecastMoveThreshold:
		return domain.ActionBuy
	case move < -forecastMoveThreshold:
		return domain.ActionSell
	default:
		return domain.ActionHold
	}
}

// comprehensiveSignal asks the advisor with the full snapshot. It has no
// local fallback: any failure votes HOLD.
type comprehensiveSignal struct {
	advisor advisory.Client
}

func (comprehensiveSignal) Name() SourceName { return SourceComprehensive }

func (s comprehensiveSignal) Vote(ctx context.Context, in *SignalInput) Vote {
	snap := advisory.Snapshot{
		Prices:    in.Prices,
		RSI:       indicators.RSI(in.Prices, indicators.RSIPeriod),
		Sentiment: in.Sentiment,
	}
	if v, err := indicators.SMA(in.Prices, indicators.ShortMAPeriod); err == nil {
		snap.ShortMA = &v
	}
	if v, err := indicators.SMA(in.Prices, indicators.LongMAPeriod); err == nil {
		snap.LongMA = &v
	}

	rec, err := s.advisor.Recommend(ctx, in.Token, snap)
	if err != nil {
		observability.RecordAdvisoryFallback(string(s.Name()))
		return Vote{Source: s.Name(), Action: domain.ActionHold, Fallback: true}
	}
	return Vote{Source: s.Name(), Action: rec.Action, Confidence: rec.Confidence}
}
