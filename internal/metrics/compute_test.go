package metrics

import (
	"testing"
	"time"

	"airdrop-optimizer/internal/domain"
)

func TestSummarize_Empty(t *testing.T) {
	start := time.Unix(1000, 0)
	s := Summarize("a1", "SOL", nil, start, start.Add(90*time.Second), domain.AgentStatusStopped)

	if s.TotalTrades != 0 || s.SuccessfulTrades != 0 || s.FailedTrades != 0 {
		t.Errorf("counts = %d/%d/%d, want zeros", s.TotalTrades, s.SuccessfulTrades, s.FailedTrades)
	}
	if s.SuccessRate != 0 {
		t.Errorf("SuccessRate = %v, want 0", s.SuccessRate)
	}
	if s.DurationSeconds != 90 {
		t.Errorf("DurationSeconds = %v, want 90", s.DurationSeconds)
	}
	if s.FinalStatus != domain.AgentStatusStopped {
		t.Errorf("FinalStatus = %s", s.FinalStatus)
	}
}

func TestSummarize_Counts(t *testing.T) {
	trades := []*domain.Trade{
		{Seq: 1, Action: domain.TradeActionBuy, Price: 100, Amount: 1, Success: true},
		{Seq: 2, Action: domain.TradeActionBuy, Price: 100, Amount: 1, Success: false},
		{Seq: 3, Action: domain.TradeActionSell, Price: 102, Amount: 1, Success: true, Profit: 1.234},
		{Seq: 4, Action: domain.TradeActionStopLoss, Price: 99, Amount: 0.5, Success: true, Profit: -0.5},
	}
	start := time.Unix(0, 0)
	s := Summarize("a1", "SOL", trades, start, start.Add(1500*time.Millisecond), domain.AgentStatusCompleted)

	if s.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", s.TotalTrades)
	}
	if s.SuccessfulTrades != 3 || s.FailedTrades != 1 {
		t.Errorf("successful/failed = %d/%d, want 3/1", s.SuccessfulTrades, s.FailedTrades)
	}
	if s.SuccessRate != 75 {
		t.Errorf("SuccessRate = %v, want 75", s.SuccessRate)
	}
	// 1.234 - 0.5 = 0.734 -> 0.73
	if s.ProfitLoss != 0.73 {
		t.Errorf("ProfitLoss = %v, want 0.73", s.ProfitLoss)
	}
	// 100 + 102 + 49.5
	if s.TradedVolume != 251.5 {
		t.Errorf("TradedVolume = %v, want 251.5", s.TradedVolume)
	}
	if s.DurationSeconds != 1.5 {
		t.Errorf("DurationSeconds = %v, want 1.5", s.DurationSeconds)
	}
}

func TestSummarize_SuccessRateRounding(t *testing.T) {
	trades := []*domain.Trade{
		{Seq: 1, Success: true},
		{Seq: 2, Success: true},
		{Seq: 3, Success: false},
	}
	s := Summarize("a1", "SOL", trades, time.Time{}, time.Time{}, domain.AgentStatusCompleted)
	if s.SuccessRate != 66.67 {
		t.Errorf("SuccessRate = %v, want 66.67", s.SuccessRate)
	}
}

func TestSummarize_NegativeSpan(t *testing.T) {
	start := time.Unix(100, 0)
	s := Summarize("a1", "SOL", nil, start, start.Add(-time.Second), domain.AgentStatusFailed)
	if s.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %v, want 0", s.DurationSeconds)
	}
}

func TestSummarize_TotalMatchesLog(t *testing.T) {
	for n := 0; n < 20; n++ {
		trades := make([]*domain.Trade, n)
		for i := range trades {
			trades[i] = &domain.Trade{Seq: i + 1, Success: i%3 != 0}
		}
		s := Summarize("a", "T", trades, time.Time{}, time.Time{}, domain.AgentStatusCompleted)
		if s.TotalTrades != n {
			t.Fatalf("TotalTrades = %d, want %d", s.TotalTrades, n)
		}
		if s.SuccessfulTrades+s.FailedTrades != n {
			t.Fatalf("successful+failed = %d, want %d", s.SuccessfulTrades+s.FailedTrades, n)
		}
	}
}
