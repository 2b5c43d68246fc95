package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/idhash"
	"airdrop-optimizer/internal/storage"
)

// JobStore implements storage.JobStore using PostgreSQL.
// Concurrent dequeuers are separated by FOR UPDATE SKIP LOCKED.
type JobStore struct {
	pool *Pool
	now  func() time.Time
}

// NewJobStore creates a new JobStore.
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.JobStore = (*JobStore)(nil)

// Enqueue adds a PENDING job and returns its id.
func (s *JobStore) Enqueue(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (string, error) {
	if kind == "" {
		return "", storage.ErrInvalidInput
	}

	query := `
		INSERT INTO jobs (job_id, kind, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`

	id := idhash.NewJobID()
	start := time.Now()
	_, err := s.pool.Exec(ctx, query, id, string(kind), jsonArg(payload), string(domain.JobStatusPending), s.now().UTC())
	recordQuery("jobs_enqueue", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return "", storage.ErrDuplicateKey
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest PENDING job.
func (s *JobStore) Dequeue(ctx context.Context) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'PROCESSING', updated_at = $1
		WHERE job_id = (
			SELECT job_id FROM jobs
			WHERE status = 'PENDING'
			ORDER BY created_at ASC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id, kind, payload, status, created_at, updated_at
	`

	start := time.Now()
	row := s.pool.QueryRow(ctx, query, s.now().UTC())
	j, err := scanJob(row)
	if isNotFoundError(err) {
		recordQuery("jobs_dequeue", start, nil)
		return nil, nil
	}
	recordQuery("jobs_dequeue", start, err)
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return j, nil
}

// Complete sets a terminal status on a job.
func (s *JobStore) Complete(ctx context.Context, jobID string, status domain.JobStatus) error {
	if !status.IsTerminal() {
		return storage.ErrInvalidInput
	}

	query := `UPDATE jobs SET status = $2, updated_at = $3 WHERE job_id = $1`

	tag, err := s.pool.Exec(ctx, query, jobID, string(status), s.now().UTC())
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Get retrieves a job by id.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, kind, payload, status, created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	j, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// StoreResult upserts a job result. The row, including completed_at, is
// only rewritten when the result or status differs from what is stored.
func (s *JobStore) StoreResult(ctx context.Context, jobID string, result json.RawMessage, status domain.JobStatus) error {
	if jobID == "" || !status.IsValid() {
		return storage.ErrInvalidInput
	}
	if len(result) > 0 && !json.Valid(result) {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO job_results (job_id, result, status, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE
		SET result = EXCLUDED.result,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at
		WHERE job_results.result IS DISTINCT FROM EXCLUDED.result
			OR job_results.status IS DISTINCT FROM EXCLUDED.status
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query, jobID, jsonArg(result), string(status), s.now().UTC())
	recordQuery("job_results_upsert", start, err)
	if err != nil {
		return fmt.Errorf("store job result: %w", err)
	}
	return nil
}

// GetResult returns the stored result, a PENDING placeholder for a known
// job without one, or ErrNotFound.
func (s *JobStore) GetResult(ctx context.Context, jobID string) (*domain.JobResult, error) {
	query := `
		SELECT job_id, result, status, completed_at
		FROM job_results
		WHERE job_id = $1
	`

	var (
		r           domain.JobResult
		result      []byte
		status      string
		completedAt time.Time
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(&r.JobID, &result, &status, &completedAt)
	switch {
	case err == nil:
		r.Result = result
		r.Status = domain.JobStatus(status)
		r.CompletedAt = &completedAt
		return &r, nil
	case !isNotFoundError(err):
		return nil, fmt.Errorf("get job result: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = $1)`, jobID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check job exists: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &domain.JobResult{JobID: jobID, Status: domain.JobStatusPending}, nil
}

// Cleanup removes results completed before olderThan and terminal jobs
// without a remaining result last updated before olderThan.
func (s *JobStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM job_results WHERE completed_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete job results: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM jobs
		WHERE status IN ('COMPLETED', 'FAILED')
			AND updated_at < $1
			AND NOT EXISTS (SELECT 1 FROM job_results r WHERE r.job_id = jobs.job_id)
	`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		j       domain.Job
		kind    string
		payload []byte
		status  string
	)
	if err := row.Scan(&j.JobID, &kind, &payload, &status, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Kind = domain.JobKind(kind)
	j.Payload = payload
	j.Status = domain.JobStatus(status)
	return &j, nil
}

// jsonArg passes raw JSON to a JSONB column; empty input becomes NULL.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
