// Package metrics rolls agent trade logs up into per-agent summaries.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

// ErrSummaryMismatch is returned when a summary does not describe the
// trade log it is persisted with.
var ErrSummaryMismatch = errors.New("summary does not match trade log")

// Aggregator persists an agent's final summary together with its trade
// log and reads them back.
type Aggregator struct {
	tradeStore   storage.TradeStore
	metricsStore storage.MetricsStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(tradeStore storage.TradeStore, metricsStore storage.MetricsStore) *Aggregator {
	return &Aggregator{
		tradeStore:   tradeStore,
		metricsStore: metricsStore,
	}
}

// Record writes trades and then the summary. The summary is written once
// per agent; a second Record for the same agent fails with
// storage.ErrDuplicateKey.
func (a *Aggregator) Record(ctx context.Context, summary domain.TradingMetricsSummary, trades []*domain.Trade) error {
	if summary.TotalTrades != len(trades) {
		return fmt.Errorf("%w: %d trades, summary says %d", ErrSummaryMismatch, len(trades), summary.TotalTrades)
	}
	for _, t := range trades {
		if t.AgentID != summary.AgentID {
			return fmt.Errorf("%w: trade %d belongs to %s", ErrSummaryMismatch, t.Seq, t.AgentID)
		}
	}

	if len(trades) > 0 {
		if err := a.tradeStore.InsertBulk(ctx, trades); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
	}
	if err := a.metricsStore.Insert(ctx, &summary); err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// Summary returns the stored summary of an agent.
func (a *Aggregator) Summary(ctx context.Context, agentID string) (*domain.TradingMetricsSummary, error) {
	return a.metricsStore.GetByAgentID(ctx, agentID)
}

// Recompute rebuilds an agent's summary from its stored trade log, keeping
// the stored timestamps and final status.
func (a *Aggregator) Recompute(ctx context.Context, agentID string) (domain.TradingMetricsSummary, error) {
	stored, err := a.metricsStore.GetByAgentID(ctx, agentID)
	if err != nil {
		return domain.TradingMetricsSummary{}, err
	}
	trades, err := a.tradeStore.GetByAgentID(ctx, agentID)
	if err != nil {
		return domain.TradingMetricsSummary{}, err
	}
	return Summarize(agentID, stored.Token, trades, stored.StartedAt, stored.EndedAt, stored.FinalStatus), nil
}
