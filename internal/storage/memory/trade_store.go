package memory

import (
	"context"
	"sort"
	"sync"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

type tradeKey struct {
	agentID string
	seq     int
}

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[tradeKey]*domain.Trade
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[tradeKey]*domain.Trade),
	}
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(_ context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[tradeKey]struct{}, len(trades))
	for _, t := range trades {
		if t == nil || t.AgentID == "" {
			return storage.ErrInvalidInput
		}
		key := tradeKey{t.AgentID, t.Seq}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, t := range trades {
		cp := *t
		s.data[tradeKey{t.AgentID, t.Seq}] = &cp
	}
	return nil
}

// GetByAgentID retrieves an agent's trades ordered by seq ASC.
func (s *TradeStore) GetByAgentID(_ context.Context, agentID string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for k, t := range s.data {
		if k.agentID == agentID {
			cp := *t
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
