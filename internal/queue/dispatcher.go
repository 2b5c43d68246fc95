package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/storage"
)

const (
	DefaultWorkers      = 4
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStoreRetries = 5
	DefaultRetryBackoff = 200 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

// Handler executes one job and returns its JSON result.
type Handler func(ctx context.Context, job *domain.Job) (json.RawMessage, error)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Store        storage.JobStore
	Workers      int
	PollInterval time.Duration
	StoreRetries int           // attempts for StoreResult before giving up
	RetryBackoff time.Duration // first retry delay, doubled per attempt
	Logger       *log.Logger
}

// Dispatcher pulls jobs from the store and runs the handler for their kind.
// Each job runs on exactly one worker.
type Dispatcher struct {
	store        storage.JobStore
	workers      int
	poll         time.Duration
	storeRetries int
	retryBackoff time.Duration
	logger       *log.Logger

	mu       sync.RWMutex
	handlers map[domain.JobKind]Handler
}

// NewDispatcher creates a Dispatcher. Zero options take defaults.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		store:        opts.Store,
		workers:      opts.Workers,
		poll:         opts.PollInterval,
		storeRetries: opts.StoreRetries,
		retryBackoff: opts.RetryBackoff,
		logger:       opts.Logger,
		handlers:     make(map[domain.JobKind]Handler),
	}
	if d.workers <= 0 {
		d.workers = DefaultWorkers
	}
	if d.poll <= 0 {
		d.poll = DefaultPollInterval
	}
	if d.storeRetries <= 0 {
		d.storeRetries = DefaultStoreRetries
	}
	if d.retryBackoff <= 0 {
		d.retryBackoff = DefaultRetryBackoff
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	return d
}

// Handle registers h for jobs of kind, replacing any previous handler.
func (d *Dispatcher) Handle(kind domain.JobKind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Run starts the workers and blocks until ctx is canceled and every
// in-flight job has finished.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.worker(ctx, id)
		}(i)
	}
	d.logger.Printf("dispatcher started with %d workers", d.workers)

	wg.Wait()
	d.logger.Printf("dispatcher stopped")
	return ctx.Err()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := d.store.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Printf("worker %d: dequeue: %v", id, err)
			}
			d.idle(ctx)
			continue
		}
		if job == nil {
			d.idle(ctx)
			continue
		}

		d.process(ctx, id, job)
	}
}

func (d *Dispatcher) idle(ctx context.Context) {
	t := time.NewTimer(d.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// process runs the job and records its outcome. Result storage outlives
// ctx so a job finished during shutdown still reports.
func (d *Dispatcher) process(ctx context.Context, worker int, job *domain.Job) {
	start := time.Now()
	result, err := d.invoke(ctx, job)

	status := domain.JobStatusCompleted
	if err != nil {
		status = domain.JobStatusFailed
		d.logger.Printf("worker %d: job %s (%s) failed: %v", worker, job.JobID, job.Kind, err)
		result = errorResult(err)
	}

	storeCtx := context.WithoutCancel(ctx)
	if err := d.storeResult(storeCtx, job.JobID, result, status); err != nil {
		d.logger.Printf("worker %d: job %s: result lost: %v", worker, job.JobID, err)
	}
	if err := d.store.Complete(storeCtx, job.JobID, status); err != nil {
		d.logger.Printf("worker %d: job %s: complete: %v", worker, job.JobID, err)
	}

	finished := time.Now()
	observability.RecordJobFinished(string(job.Kind), string(status), finished.Sub(start).Seconds(), finished.Unix())
}

func (d *Dispatcher) invoke(ctx context.Context, job *domain.Job) (result json.RawMessage, err error) {
	d.mu.RLock()
	h, ok := d.handlers[job.Kind]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler for job kind %q", job.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// storeResult retries StoreResult with doubling backoff.
func (d *Dispatcher) storeResult(ctx context.Context, jobID string, result json.RawMessage, status domain.JobStatus) error {
	backoff := d.retryBackoff
	var err error
	for attempt := 1; attempt <= d.storeRetries; attempt++ {
		if err = d.store.StoreResult(ctx, jobID, result, status); err == nil {
			return nil
		}
		if attempt == d.storeRetries {
			break
		}
		observability.RecordResultStoreRetry()
		d.logger.Printf("store result for job %s (attempt %d/%d): %v", jobID, attempt, d.storeRetries, err)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxRetryBackoff)
	}
	return err
}

func errorResult(err error) json.RawMessage {
	b, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
	return b
}
