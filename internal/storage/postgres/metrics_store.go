package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

// MetricsStore implements storage.MetricsStore using PostgreSQL.
type MetricsStore struct {
	pool *Pool
}

// NewMetricsStore creates a new MetricsStore.
func NewMetricsStore(pool *Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MetricsStore = (*MetricsStore)(nil)

const metricsColumns = `agent_id, token, total_trades, successful_trades, failed_trades,
	success_rate, profit_loss, traded_volume, duration_seconds, final_status, started_at, ended_at`

// Insert adds a summary. Returns ErrDuplicateKey if agent_id exists.
func (s *MetricsStore) Insert(ctx context.Context, m *domain.TradingMetricsSummary) error {
	if m == nil || m.AgentID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trading_metrics (` + metricsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		m.AgentID,
		m.Token,
		m.TotalTrades,
		m.SuccessfulTrades,
		m.FailedTrades,
		m.SuccessRate,
		m.ProfitLoss,
		m.TradedVolume,
		m.DurationSeconds,
		string(m.FinalStatus),
		m.StartedAt.UTC(),
		m.EndedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trading metrics: %w", err)
	}
	return nil
}

// GetByAgentID retrieves a summary. Returns ErrNotFound if not exists.
func (s *MetricsStore) GetByAgentID(ctx context.Context, agentID string) (*domain.TradingMetricsSummary, error) {
	query := `SELECT ` + metricsColumns + ` FROM trading_metrics WHERE agent_id = $1`

	m, err := scanSummary(s.pool.QueryRow(ctx, query, agentID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trading metrics: %w", err)
	}
	return m, nil
}

// GetAll retrieves every summary, ordered by ended_at ASC, agent_id ASC.
func (s *MetricsStore) GetAll(ctx context.Context) ([]*domain.TradingMetricsSummary, error) {
	query := `SELECT ` + metricsColumns + ` FROM trading_metrics ORDER BY ended_at ASC, agent_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query trading metrics: %w", err)
	}
	defer rows.Close()

	var result []*domain.TradingMetricsSummary
	for rows.Next() {
		m, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trading metrics: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trading metrics: %w", err)
	}
	return result, nil
}

func scanSummary(row pgx.Row) (*domain.TradingMetricsSummary, error) {
	var (
		m      domain.TradingMetricsSummary
		status string
	)
	err := row.Scan(
		&m.AgentID,
		&m.Token,
		&m.TotalTrades,
		&m.SuccessfulTrades,
		&m.FailedTrades,
		&m.SuccessRate,
		&m.ProfitLoss,
		&m.TradedVolume,
		&m.DurationSeconds,
		&status,
		&m.StartedAt,
		&m.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	m.FinalStatus = domain.AgentStatus(status)
	return &m, nil
}
