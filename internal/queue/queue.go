// Package queue submits deferred work to a storage.JobStore and runs it on
// a pool of workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/storage"
)

// Queue enqueues jobs and hands back a Handle for polling their result.
type Queue struct {
	store storage.JobStore
}

// New creates a Queue over store.
func New(store storage.JobStore) *Queue {
	return &Queue{store: store}
}

// Submit marshals payload and enqueues it as a PENDING job of kind.
// A json.RawMessage payload is stored as is.
func (q *Queue) Submit(ctx context.Context, kind domain.JobKind, payload any) (*Handle, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok && payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		raw = b
	}

	id, err := q.store.Enqueue(ctx, kind, raw)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	observability.RecordJobEnqueued(string(kind))
	return &Handle{id: id, store: q.store}, nil
}

// Handle refers to one submitted job.
type Handle struct {
	id    string
	store storage.JobStore
}

// NewHandle rebuilds a handle for a job id obtained earlier.
func NewHandle(store storage.JobStore, jobID string) *Handle {
	return &Handle{id: jobID, store: store}
}

// ID returns the job id.
func (h *Handle) ID() string { return h.id }

// Result returns the current result record. While the job runs the status
// is PENDING or PROCESSING.
func (h *Handle) Result(ctx context.Context) (*domain.JobResult, error) {
	return h.store.GetResult(ctx, h.id)
}

// Wait polls until the job reaches a terminal status or ctx is done.
func (h *Handle) Wait(ctx context.Context, poll time.Duration) (*domain.JobResult, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		r, err := h.Result(ctx)
		if err != nil {
			return nil, err
		}
		if r.Status.IsTerminal() {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
