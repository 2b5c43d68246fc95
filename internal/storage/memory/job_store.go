package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/idhash"
	"airdrop-optimizer/internal/storage"
)

// JobStore is an in-memory implementation of storage.JobStore.
type JobStore struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job       // keyed by job_id
	results map[string]*domain.JobResult // keyed by job_id
	pending []string                     // PENDING job ids in creation order
	now     func() time.Time
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return NewJobStoreWithClock(time.Now)
}

// NewJobStoreWithClock creates a job store that timestamps with now.
func NewJobStoreWithClock(now func() time.Time) *JobStore {
	return &JobStore{
		jobs:    make(map[string]*domain.Job),
		results: make(map[string]*domain.JobResult),
		now:     now,
	}
}

// Enqueue adds a PENDING job and returns its id.
func (s *JobStore) Enqueue(_ context.Context, kind domain.JobKind, payload json.RawMessage) (string, error) {
	if kind == "" {
		return "", storage.ErrInvalidInput
	}
	compacted, err := compactJSON(payload)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := idhash.NewJobID()
	s.jobs[id] = &domain.Job{
		JobID:     id,
		Kind:      kind,
		Payload:   compacted,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.pending = append(s.pending, id)
	return id, nil
}

// Dequeue pops the oldest PENDING job and marks it PROCESSING.
func (s *JobStore) Dequeue(_ context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) > 0 {
		id := s.pending[0]
		s.pending = s.pending[1:]

		j, ok := s.jobs[id]
		if !ok || j.Status != domain.JobStatusPending {
			continue
		}
		j.Status = domain.JobStatusProcessing
		j.UpdatedAt = s.now()
		return copyJob(j), nil
	}
	return nil, nil
}

// Complete sets a terminal status on a job.
func (s *JobStore) Complete(_ context.Context, jobID string, status domain.JobStatus) error {
	if !status.IsTerminal() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = s.now()
	return nil
}

// Get retrieves a job by id.
func (s *JobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyJob(j), nil
}

// StoreResult upserts a job result. An identical re-store keeps the
// original completion time.
func (s *JobStore) StoreResult(_ context.Context, jobID string, result json.RawMessage, status domain.JobStatus) error {
	if jobID == "" || !status.IsValid() {
		return storage.ErrInvalidInput
	}
	compacted, err := compactJSON(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.results[jobID]; ok &&
		existing.Status == status && bytes.Equal(existing.Result, compacted) {
		return nil
	}

	completedAt := s.now()
	s.results[jobID] = &domain.JobResult{
		JobID:       jobID,
		Result:      compacted,
		Status:      status,
		CompletedAt: &completedAt,
	}
	return nil
}

// GetResult returns the stored result, a PENDING placeholder for a known
// job without one, or ErrNotFound.
func (s *JobStore) GetResult(_ context.Context, jobID string) (*domain.JobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[jobID]; ok {
		return copyResult(r), nil
	}
	if _, ok := s.jobs[jobID]; ok {
		return &domain.JobResult{JobID: jobID, Status: domain.JobStatusPending}, nil
	}
	return nil, storage.ErrNotFound
}

// Cleanup removes results completed before olderThan and terminal jobs
// last updated before olderThan.
func (s *JobStore) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, r := range s.results {
		if r.CompletedAt != nil && r.CompletedAt.Before(olderThan) {
			delete(s.results, id)
			removed++
		}
	}
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.UpdatedAt.Before(olderThan) {
			if _, hasResult := s.results[id]; !hasResult {
				delete(s.jobs, id)
			}
		}
	}
	return removed, nil
}

func compactJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, storage.ErrInvalidInput
	}
	return buf.Bytes(), nil
}

func copyJob(j *domain.Job) *domain.Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	return &c
}

func copyResult(r *domain.JobResult) *domain.JobResult {
	c := *r
	c.Result = append(json.RawMessage(nil), r.Result...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

var _ storage.JobStore = (*JobStore)(nil)
