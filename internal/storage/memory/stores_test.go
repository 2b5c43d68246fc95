package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

func TestCampaignStore_InsertAndGet(t *testing.T) {
	store := NewCampaignStore()
	ctx := context.Background()

	score := 9.8
	c := &domain.Campaign{
		CampaignID:     "c1",
		Token:          "SOL",
		VolumeRequired: 1000,
		Reward:         50,
		PeriodDays:     7,
		ViabilityScore: &score,
		Status:         domain.CampaignStatusActive,
		CreatedAt:      time.Unix(1000, 0),
	}
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, c); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	*c.ViabilityScore = 1

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if *got.ViabilityScore != 9.8 {
		t.Errorf("ViabilityScore = %v, want 9.8", *got.ViabilityScore)
	}

	if _, err := store.GetByID(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCampaignStore_SetAgentOnce(t *testing.T) {
	store := NewCampaignStore()
	ctx := context.Background()

	_ = store.Insert(ctx, &domain.Campaign{CampaignID: "c1", Status: domain.CampaignStatusActive})

	if err := store.SetAgent(ctx, "c1", "trader-SOL-1"); err != nil {
		t.Fatalf("SetAgent failed: %v", err)
	}
	if err := store.SetAgent(ctx, "c1", "trader-SOL-2"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("second SetAgent: got %v, want ErrDuplicateKey", err)
	}
	if err := store.SetAgent(ctx, "c2", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("SetAgent unknown: got %v, want ErrNotFound", err)
	}

	got, _ := store.GetByID(ctx, "c1")
	if got.AgentID == nil || *got.AgentID != "trader-SOL-1" {
		t.Errorf("AgentID = %v", got.AgentID)
	}
	if got.Status != domain.CampaignStatusAgentCreated {
		t.Errorf("Status = %s, want AGENT_CREATED", got.Status)
	}
}

func TestCampaignStore_GetByStatus(t *testing.T) {
	store := NewCampaignStore()
	ctx := context.Background()

	_ = store.Insert(ctx, &domain.Campaign{CampaignID: "b", Status: domain.CampaignStatusRejected, CreatedAt: time.Unix(2, 0)})
	_ = store.Insert(ctx, &domain.Campaign{CampaignID: "a", Status: domain.CampaignStatusRejected, CreatedAt: time.Unix(1, 0)})
	_ = store.Insert(ctx, &domain.Campaign{CampaignID: "c", Status: domain.CampaignStatusActive, CreatedAt: time.Unix(0, 0)})

	got, err := store.GetByStatus(ctx, domain.CampaignStatusRejected)
	if err != nil {
		t.Fatalf("GetByStatus failed: %v", err)
	}
	if len(got) != 2 || got[0].CampaignID != "a" || got[1].CampaignID != "b" {
		t.Errorf("GetByStatus order wrong: %+v", got)
	}
}

func TestMetricsStore_WriteOnce(t *testing.T) {
	store := NewMetricsStore()
	ctx := context.Background()

	m := &domain.TradingMetricsSummary{AgentID: "a1", Token: "SOL", TotalTrades: 3, EndedAt: time.Unix(10, 0)}
	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, m); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	_ = store.Insert(ctx, &domain.TradingMetricsSummary{AgentID: "a0", EndedAt: time.Unix(5, 0)})

	got, err := store.GetByAgentID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByAgentID failed: %v", err)
	}
	if got.TotalTrades != 3 {
		t.Errorf("TotalTrades = %d, want 3", got.TotalTrades)
	}

	all, _ := store.GetAll(ctx)
	if len(all) != 2 || all[0].AgentID != "a0" {
		t.Errorf("GetAll order wrong: %+v", all)
	}
}

func TestTradeStore_InsertBulk(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trades := []*domain.Trade{
		{AgentID: "a1", Seq: 2, Action: domain.TradeActionSell},
		{AgentID: "a1", Seq: 1, Action: domain.TradeActionBuy},
		{AgentID: "a2", Seq: 1, Action: domain.TradeActionBuy},
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByAgentID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByAgentID failed: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("trades not ordered by seq: %+v", got)
	}

	// Duplicate anywhere in the batch rejects the whole batch.
	err = store.InsertBulk(ctx, []*domain.Trade{
		{AgentID: "a3", Seq: 1},
		{AgentID: "a1", Seq: 1},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if got, _ := store.GetByAgentID(ctx, "a3"); len(got) != 0 {
		t.Errorf("partial batch inserted: %+v", got)
	}

	err = store.InsertBulk(ctx, []*domain.Trade{{AgentID: "a4", Seq: 1}, {AgentID: "a4", Seq: 1}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("intra-batch duplicate: got %v, want ErrDuplicateKey", err)
	}
}
