package domain

import (
	"encoding/json"
	"time"
)

// JobKind names the handler a job is dispatched to.
type JobKind string

const (
	JobKindCreateAgent    JobKind = "create_agent"
	JobKindExecuteTrading JobKind = "execute_trading"
)

// JobStatus is the queue lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether the status ends the job lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid checks if the status is a valid value.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job is a queue entry.
type Job struct {
	JobID     string          `json:"job_id"`
	Kind      JobKind         `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobResult is the stored outcome of a job. Result is nil while the job
// has not completed.
type JobResult struct {
	JobID       string          `json:"job_id"`
	Result      json.RawMessage `json:"result,omitempty"`
	Status      JobStatus       `json:"status"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
