package queue

import (
	"context"
	"log"
	"time"

	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/storage"
)

const (
	DefaultRetention  = 7 * 24 * time.Hour
	DefaultSweepEvery = time.Hour
)

// Sweeper periodically removes job results older than the retention window.
type Sweeper struct {
	store     storage.JobStore
	retention time.Duration
	every     time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// NewSweeper creates a Sweeper. Non-positive durations take defaults.
func NewSweeper(store storage.JobStore, retention, every time.Duration, logger *log.Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if every <= 0 {
		every = DefaultSweepEvery
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{store: store, retention: retention, every: every, logger: logger, now: time.Now}
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.Cleanup(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	observability.RecordCleanup(n)
	if n > 0 {
		s.logger.Printf("removed %d results older than %s", n, s.retention)
	}
	return n, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Printf("cleanup failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
