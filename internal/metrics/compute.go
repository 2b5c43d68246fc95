package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"airdrop-optimizer/internal/domain"
)

// Summarize folds an agent's trade log into a TradingMetricsSummary.
// Trades are expected in seq order; the function does not reorder them.
// SuccessRate is successes/total*100 (0 for an empty log); SuccessRate and
// ProfitLoss are rounded to 2 decimal places. TradedVolume is the notional
// of successful trades. A negative wall-clock span yields zero duration.
func Summarize(agentID, token string, trades []*domain.Trade, startedAt, endedAt time.Time, final domain.AgentStatus) domain.TradingMetricsSummary {
	s := domain.TradingMetricsSummary{
		AgentID:     agentID,
		Token:       token,
		TotalTrades: len(trades),
		FinalStatus: final,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
	}

	profit := decimal.Zero
	volume := decimal.Zero
	for _, t := range trades {
		if t.Success {
			s.SuccessfulTrades++
			volume = volume.Add(decimal.NewFromFloat(t.Notional()))
		}
		profit = profit.Add(decimal.NewFromFloat(t.Profit))
	}
	s.FailedTrades = s.TotalTrades - s.SuccessfulTrades
	s.SuccessRate = successRate(s.SuccessfulTrades, s.TotalTrades)
	s.ProfitLoss = profit.Round(2).InexactFloat64()
	s.TradedVolume = volume.Round(2).InexactFloat64()

	if d := endedAt.Sub(startedAt); d > 0 {
		s.DurationSeconds = decimal.NewFromFloat(d.Seconds()).Round(3).InexactFloat64()
	}
	return s
}

// successRate returns successes/total as a percentage rounded to 2 dp.
func successRate(successes, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(successes)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}
