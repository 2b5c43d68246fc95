package storage

import (
	"context"
	"encoding/json"
	"time"

	"airdrop-optimizer/internal/domain"
)

// JobStore is the durable task queue and result store.
// Corresponds to jobs and job_results.
type JobStore interface {
	// Enqueue adds a PENDING job and returns its generated id.
	Enqueue(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (string, error)

	// Dequeue returns the oldest PENDING job, atomically marked PROCESSING.
	// Returns (nil, nil) when no job is pending. Concurrent callers never
	// receive the same job.
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Complete sets a terminal status on a job. Returns ErrInvalidInput if
	// status is not terminal and ErrNotFound if the job does not exist.
	Complete(ctx context.Context, jobID string, status domain.JobStatus) error

	// Get retrieves a job by id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// StoreResult upserts the result for a job. Storing an identical
	// result again leaves the stored record unchanged.
	StoreResult(ctx context.Context, jobID string, result json.RawMessage, status domain.JobStatus) error

	// GetResult returns the stored result. For a known job without a result
	// it returns status PENDING and a nil Result. Returns ErrNotFound if the
	// store has no record of jobID.
	GetResult(ctx context.Context, jobID string) (*domain.JobResult, error)

	// Cleanup removes results completed before olderThan, together with
	// terminal jobs last updated before olderThan. Returns the number of
	// results removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}

// CampaignStore provides access to campaigns storage.
type CampaignStore interface {
	// Insert adds a new campaign. Returns ErrDuplicateKey if campaign_id exists.
	Insert(ctx context.Context, c *domain.Campaign) error

	// GetByID retrieves a campaign by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, campaignID string) (*domain.Campaign, error)

	// SetAgent links an agent to a campaign and marks it AGENT_CREATED.
	// Returns ErrNotFound if the campaign does not exist and ErrDuplicateKey
	// if it already has an agent.
	SetAgent(ctx context.Context, campaignID, agentID string) error

	// GetByStatus retrieves campaigns with the given status, ordered by created_at ASC.
	GetByStatus(ctx context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error)
}

// MetricsStore provides access to trading_metrics storage.
// One summary per agent, written once.
type MetricsStore interface {
	// Insert adds a summary. Returns ErrDuplicateKey if agent_id exists.
	Insert(ctx context.Context, m *domain.TradingMetricsSummary) error

	// GetByAgentID retrieves the summary of an agent. Returns ErrNotFound if not exists.
	GetByAgentID(ctx context.Context, agentID string) (*domain.TradingMetricsSummary, error)

	// GetAll retrieves every summary, ordered by ended_at ASC, agent_id ASC.
	GetAll(ctx context.Context) ([]*domain.TradingMetricsSummary, error)
}

// TradeStore provides access to agent_trades storage.
type TradeStore interface {
	// InsertBulk appends trades. Fails entire batch on any duplicate (agent_id, seq).
	InsertBulk(ctx context.Context, trades []*domain.Trade) error

	// GetByAgentID retrieves an agent's trades ordered by seq ASC.
	GetByAgentID(ctx context.Context, agentID string) ([]*domain.Trade, error)
}
