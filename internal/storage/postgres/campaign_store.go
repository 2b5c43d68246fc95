package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

// CampaignStore implements storage.CampaignStore using PostgreSQL.
type CampaignStore struct {
	pool *Pool
}

// NewCampaignStore creates a new CampaignStore.
func NewCampaignStore(pool *Pool) *CampaignStore {
	return &CampaignStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CampaignStore = (*CampaignStore)(nil)

const campaignColumns = `campaign_id, token, volume_required, reward, period_days, url, viability_score, status, agent_id, created_at`

// Insert adds a new campaign. Returns ErrDuplicateKey if campaign_id exists.
func (s *CampaignStore) Insert(ctx context.Context, c *domain.Campaign) error {
	if c == nil || c.CampaignID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		c.CampaignID,
		c.Token,
		c.VolumeRequired,
		c.Reward,
		c.PeriodDays,
		c.URL,
		c.ViabilityScore,
		string(c.Status),
		c.AgentID,
		c.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign by its ID. Returns ErrNotFound if not exists.
func (s *CampaignStore) GetByID(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE campaign_id = $1`

	c, err := scanCampaign(s.pool.QueryRow(ctx, query, campaignID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign by id: %w", err)
	}
	return c, nil
}

// SetAgent links an agent to a campaign that has none yet.
func (s *CampaignStore) SetAgent(ctx context.Context, campaignID, agentID string) error {
	if agentID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE campaigns
		SET agent_id = $2, status = 'AGENT_CREATED'
		WHERE campaign_id = $1 AND agent_id IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, campaignID, agentID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("set campaign agent: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing campaign from one that already has an agent.
	if _, err := s.GetByID(ctx, campaignID); err != nil {
		return err
	}
	return storage.ErrDuplicateKey
}

// GetByStatus retrieves campaigns with status, ordered by created_at ASC.
func (s *CampaignStore) GetByStatus(ctx context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = $1
		ORDER BY created_at ASC, campaign_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("query campaigns by status: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// scanCampaign scans a single campaign row.
func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		c      domain.Campaign
		status string
	)
	err := row.Scan(
		&c.CampaignID,
		&c.Token,
		&c.VolumeRequired,
		&c.Reward,
		&c.PeriodDays,
		&c.URL,
		&c.ViabilityScore,
		&status,
		&c.AgentID,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.CampaignStatus(status)
	return &c, nil
}

// scanCampaigns scans multiple campaign rows.
func scanCampaigns(rows pgx.Rows) ([]*domain.Campaign, error) {
	var result []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return result, nil
}
