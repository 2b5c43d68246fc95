package memory

import (
	"context"
	"sort"
	"sync"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

// CampaignStore is an in-memory implementation of storage.CampaignStore.
type CampaignStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Campaign // keyed by campaign_id
}

// NewCampaignStore creates a new in-memory campaign store.
func NewCampaignStore() *CampaignStore {
	return &CampaignStore{
		data: make(map[string]*domain.Campaign),
	}
}

// Insert adds a new campaign. Returns ErrDuplicateKey if campaign_id exists.
func (s *CampaignStore) Insert(_ context.Context, c *domain.Campaign) error {
	if c == nil || c.CampaignID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.CampaignID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[c.CampaignID] = copyCampaign(c)
	return nil
}

// GetByID retrieves a campaign by its ID. Returns ErrNotFound if not exists.
func (s *CampaignStore) GetByID(_ context.Context, campaignID string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[campaignID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyCampaign(c), nil
}

// SetAgent links an agent to a campaign that has none yet.
func (s *CampaignStore) SetAgent(_ context.Context, campaignID, agentID string) error {
	if agentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[campaignID]
	if !exists {
		return storage.ErrNotFound
	}
	if c.AgentID != nil {
		return storage.ErrDuplicateKey
	}
	id := agentID
	c.AgentID = &id
	c.Status = domain.CampaignStatusAgentCreated
	return nil
}

// GetByStatus retrieves campaigns with status, ordered by created_at ASC.
func (s *CampaignStore) GetByStatus(_ context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Campaign
	for _, c := range s.data {
		if c.Status == status {
			result = append(result, copyCampaign(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].CampaignID < result[j].CampaignID
	})
	return result, nil
}

func copyCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	if c.ViabilityScore != nil {
		v := *c.ViabilityScore
		cp.ViabilityScore = &v
	}
	if c.AgentID != nil {
		v := *c.AgentID
		cp.AgentID = &v
	}
	return &cp
}

var _ storage.CampaignStore = (*CampaignStore)(nil)
