package clickhouse

import (
	"context"
	"fmt"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse.
// MergeTree does not enforce keys, so duplicates are checked before insert.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertBulk appends trades. Fails entire batch on duplicate (agent_id, seq).
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	// Check for intra-batch duplicates, grouping seqs per agent.
	bySeq := make(map[string]map[uint32]struct{})
	for _, t := range trades {
		if t == nil || t.AgentID == "" || t.Seq < 0 {
			return storage.ErrInvalidInput
		}
		seqs, ok := bySeq[t.AgentID]
		if !ok {
			seqs = make(map[uint32]struct{})
			bySeq[t.AgentID] = seqs
		}
		if _, exists := seqs[uint32(t.Seq)]; exists {
			return storage.ErrDuplicateKey
		}
		seqs[uint32(t.Seq)] = struct{}{}
	}

	// Check for duplicates against existing rows.
	for agentID, seqs := range bySeq {
		list := make([]uint32, 0, len(seqs))
		for seq := range seqs {
			list = append(list, seq)
		}
		n, err := s.countExisting(ctx, agentID, list)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if n > 0 {
			return storage.ErrDuplicateKey
		}
	}

	start := time.Now()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO agent_trades (
			agent_id, seq, timestamp_ms, action, price, amount, success, profit
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		err = batch.Append(
			t.AgentID, uint32(t.Seq), t.TimestampMs, string(t.Action),
			t.Price, t.Amount, t.Success, t.Profit,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	err = batch.Send()
	recordQuery("agent_trades_insert", start, err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByAgentID retrieves an agent's trades ordered by seq ASC.
func (s *TradeStore) GetByAgentID(ctx context.Context, agentID string) ([]*domain.Trade, error) {
	query := `
		SELECT agent_id, seq, timestamp_ms, action, price, amount, success, profit
		FROM agent_trades FINAL
		WHERE agent_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("query by agent id: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *TradeStore) countExisting(ctx context.Context, agentID string, seqs []uint32) (uint64, error) {
	query := `
		SELECT count(*) FROM agent_trades
		WHERE agent_id = ? AND seq IN ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, agentID, seqs).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// scanTrades scans multiple rows.
func scanTrades(rows chRows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var (
			t      domain.Trade
			seq    uint32
			action string
		)
		err := rows.Scan(
			&t.AgentID, &seq, &t.TimestampMs, &action,
			&t.Price, &t.Amount, &t.Success, &t.Profit,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.Seq = int(seq)
		t.Action = domain.TradeAction(action)
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
