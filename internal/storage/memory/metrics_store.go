package memory

import (
	"context"
	"sort"
	"sync"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

// MetricsStore is an in-memory implementation of storage.MetricsStore.
type MetricsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradingMetricsSummary // keyed by agent_id
}

// NewMetricsStore creates a new in-memory metrics store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{
		data: make(map[string]*domain.TradingMetricsSummary),
	}
}

// Insert adds a summary. Returns ErrDuplicateKey if agent_id exists.
func (s *MetricsStore) Insert(_ context.Context, m *domain.TradingMetricsSummary) error {
	if m == nil || m.AgentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.AgentID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *m
	s.data[m.AgentID] = &cp
	return nil
}

// GetByAgentID retrieves a summary. Returns ErrNotFound if not exists.
func (s *MetricsStore) GetByAgentID(_ context.Context, agentID string) (*domain.TradingMetricsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[agentID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// GetAll retrieves every summary, ordered by ended_at ASC, agent_id ASC.
func (s *MetricsStore) GetAll(_ context.Context) ([]*domain.TradingMetricsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TradingMetricsSummary, 0, len(s.data))
	for _, m := range s.data {
		cp := *m
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EndedAt.Equal(result[j].EndedAt) {
			return result[i].EndedAt.Before(result[j].EndedAt)
		}
		return result[i].AgentID < result[j].AgentID
	})
	return result, nil
}

var _ storage.MetricsStore = (*MetricsStore)(nil)
