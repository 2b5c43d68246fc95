// Package trading runs per-agent trading loops: ensemble decision, simulated
// fill, stop-loss, until the agent's volume target is reached.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/market"
	"airdrop-optimizer/internal/metrics"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/randsrc"
)

const (
	// DefaultInitialBalance is the starting wallet of every agent.
	DefaultInitialBalance = 10000.0

	// DefaultFailureBackoff is the pause after a failed iteration.
	DefaultFailureBackoff = 5 * time.Second

	// DefaultMaxConsecutiveFailures moves a stuck agent to failed.
	DefaultMaxConsecutiveFailures = 10
)

// Predictor returns the next trading action for a token.
type Predictor interface {
	Predict(ctx context.Context, token string) (domain.Action, error)
}

// Options configures an Agent.
type Options struct {
	Config    domain.AgentConfig
	Predictor Predictor
	Prices    market.PriceFeed
	Rand      randsrc.Source
	Clock     Clock
	Logger    *log.Logger
	Sinks     []EventSink

	// InitialBalance defaults to DefaultInitialBalance when zero.
	InitialBalance float64

	// FailureBackoff defaults to DefaultFailureBackoff when zero.
	FailureBackoff time.Duration

	// MaxConsecutiveFailures after which the agent fails. Zero selects
	// DefaultMaxConsecutiveFailures; negative retries forever.
	MaxConsecutiveFailures int
}

// Agent owns one trading loop and its state. The loop goroutine is the
// only writer of wallet, inventory and trade log; every other method only
// reads snapshots or signals the loop.
type Agent struct {
	cfg       domain.AgentConfig
	predictor Predictor
	prices    market.PriceFeed
	rng       randsrc.Source
	clock     Clock
	logger    *log.Logger
	sinks     []EventSink

	backoff     time.Duration
	maxFailures int

	startCh   chan struct{}
	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	mu           sync.RWMutex
	status       domain.AgentStatus
	wallet       float64
	inventory    float64
	tradedVolume float64
	trades       []*domain.Trade
	startedAt    *time.Time
	endedAt      *time.Time
	lastUpdate   time.Time
	lastErr      string
}

// NewAgent creates an agent in the initializing state.
func NewAgent(opts Options) (*Agent, error) {
	cfg := opts.Config
	switch {
	case cfg.AgentID == "" || cfg.Token == "":
		return nil, fmt.Errorf("%w: agent id and token are required", ErrInvalidConfig)
	case cfg.VolumeTarget < 0 || math.IsNaN(cfg.VolumeTarget):
		return nil, fmt.Errorf("%w: volume target %v", ErrInvalidConfig, cfg.VolumeTarget)
	case cfg.PositionSize <= 0 || cfg.PositionSize > 1:
		return nil, fmt.Errorf("%w: position size %v", ErrInvalidConfig, cfg.PositionSize)
	case cfg.MaxSlippage < 0 || cfg.MaxSlippage >= 1:
		return nil, fmt.Errorf("%w: max slippage %v", ErrInvalidConfig, cfg.MaxSlippage)
	case opts.Predictor == nil || opts.Prices == nil:
		return nil, fmt.Errorf("%w: predictor and price feed are required", ErrInvalidConfig)
	}

	a := &Agent{
		cfg:         cfg,
		predictor:   opts.Predictor,
		prices:      opts.Prices,
		rng:         opts.Rand,
		clock:       opts.Clock,
		logger:      opts.Logger,
		sinks:       opts.Sinks,
		backoff:     opts.FailureBackoff,
		maxFailures: opts.MaxConsecutiveFailures,
		startCh:     make(chan struct{}),
		stopCh:      make(chan struct{}),
		status:      domain.AgentStatusInitializing,
		wallet:      opts.InitialBalance,
	}
	if a.rng == nil {
		a.rng = randsrc.New()
	}
	if a.clock == nil {
		a.clock = RealClock()
	}
	if a.logger == nil {
		a.logger = log.New(os.Stderr, fmt.Sprintf("[agent %s] ", cfg.AgentID), log.LstdFlags|log.Lshortfile)
	}
	if a.backoff == 0 {
		a.backoff = DefaultFailureBackoff
	}
	if a.maxFailures == 0 {
		a.maxFailures = DefaultMaxConsecutiveFailures
	}
	if a.wallet == 0 {
		a.wallet = DefaultInitialBalance
	}
	if a.wallet < 0 {
		return nil, fmt.Errorf("%w: initial balance %v", ErrInvalidConfig, a.wallet)
	}
	a.lastUpdate = a.clock.Now()
	return a, nil
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.cfg.AgentID }

// Config returns the agent configuration.
func (a *Agent) Config() domain.AgentConfig { return a.cfg }

// Start moves initializing -> running. Any other state fails with
// ErrInvalidStateTransition.
func (a *Agent) Start() error {
	a.mu.Lock()
	if a.status != domain.AgentStatusInitializing {
		status := a.status
		a.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidStateTransition, status)
	}
	now := a.clock.Now()
	a.status = domain.AgentStatusRunning
	a.startedAt = &now
	a.lastUpdate = now
	a.mu.Unlock()

	a.startOnce.Do(func() { close(a.startCh) })
	observability.AgentStarted()
	a.logger.Printf("started: token=%s tier=%s target=%.2f", a.cfg.Token, a.cfg.RiskTier, a.cfg.VolumeTarget)
	return nil
}

// Stop moves running -> stopped. The loop observes it at its next
// iteration boundary or sleep and emits no further trades; Run publishes
// the stopped status. Any other state fails with ErrInvalidStateTransition.
func (a *Agent) Stop() error {
	a.mu.Lock()
	if a.status != domain.AgentStatusRunning {
		status := a.status
		a.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidStateTransition, status)
	}
	a.status = domain.AgentStatusStopped
	a.lastUpdate = a.clock.Now()
	a.mu.Unlock()

	a.stopOnce.Do(func() { close(a.stopCh) })
	a.logger.Printf("stop requested")
	return nil
}

// Status returns the current lifecycle state.
func (a *Agent) Status() domain.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Snapshot returns a read-only view of the agent state.
func (a *Agent) Snapshot() domain.AgentSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

func (a *Agent) snapshotLocked() domain.AgentSnapshot {
	s := domain.AgentSnapshot{
		AgentID:        a.cfg.AgentID,
		CampaignID:     a.cfg.CampaignID,
		Token:          a.cfg.Token,
		RiskTier:       a.cfg.RiskTier,
		Status:         a.status,
		Wallet:         a.wallet,
		Inventory:      a.inventory,
		TradedVolume:   a.tradedVolume,
		VolumeTarget:   a.cfg.VolumeTarget,
		Progress:       progress(a.tradedVolume, a.cfg.VolumeTarget),
		TradesExecuted: len(a.trades),
		LastUpdate:     a.lastUpdate,
		LastError:      a.lastErr,
	}
	if a.startedAt != nil {
		t := *a.startedAt
		s.StartedAt = &t
	}
	return s
}

// Trades returns a copy of the trade log in seq order.
func (a *Agent) Trades() []*domain.Trade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*domain.Trade, len(a.trades))
	for i, t := range a.trades {
		cp := *t
		out[i] = &cp
	}
	return out
}

// Run blocks until the agent is started, then trades until the volume
// target is reached, a stop is requested, ctx is done, or consecutive
// failures exceed the cap. It returns the summary over the trades made.
//
// If ctx ends before the agent is started, Run returns ctx.Err() and the
// agent stays initializing. Cancellation of a running agent is treated as
// a stop request.
func (a *Agent) Run(ctx context.Context) (domain.TradingMetricsSummary, error) {
	select {
	case <-a.startCh:
	case <-ctx.Done():
		return domain.TradingMetricsSummary{}, ctx.Err()
	}
	a.publish(Event{Type: EventStatus})

	final := a.loop(ctx)
	return a.finish(final), nil
}

func (a *Agent) loop(ctx context.Context) domain.AgentStatus {
	failures := 0
	for {
		if a.targetReached() {
			return domain.AgentStatusCompleted
		}
		if a.stopRequested(ctx) {
			return domain.AgentStatusStopped
		}

		err := a.safeIterate(ctx)
		if err != nil {
			if a.stopRequested(ctx) {
				return domain.AgentStatusStopped
			}
			failures++
			a.recordFailure(err, failures)
			if a.maxFailures > 0 && failures >= a.maxFailures {
				a.logger.Printf("giving up after %d consecutive failures", failures)
				return domain.AgentStatusFailed
			}
			a.sleep(ctx, a.backoff)
			continue
		}
		failures = 0

		if a.targetReached() {
			return domain.AgentStatusCompleted
		}
		a.sleep(ctx, a.cfg.TradeInterval)
	}
}

// finish records the terminal state and returns the summary.
func (a *Agent) finish(final domain.AgentStatus) domain.TradingMetricsSummary {
	now := a.clock.Now()

	a.mu.Lock()
	// A stop from Stop() already set the status; cancellation and the
	// other exits set it here.
	if a.status == domain.AgentStatusRunning {
		a.status = final
	}
	final = a.status
	a.endedAt = &now
	a.lastUpdate = now
	trades := make([]*domain.Trade, len(a.trades))
	copy(trades, a.trades)
	startedAt := now
	if a.startedAt != nil {
		startedAt = *a.startedAt
	}
	volume := a.tradedVolume
	a.mu.Unlock()

	observability.AgentFinished(string(final))
	a.logger.Printf("finished: status=%s trades=%d volume=%.2f/%.2f", final, len(trades), volume, a.cfg.VolumeTarget)
	a.publish(Event{Type: EventStatus})

	return metrics.Summarize(a.cfg.AgentID, a.cfg.Token, trades, startedAt, now, final)
}

func (a *Agent) targetReached() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tradedVolume >= a.cfg.VolumeTarget
}

func (a *Agent) stopRequested(ctx context.Context) bool {
	select {
	case <-a.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits d unless a stop or cancellation arrives first.
func (a *Agent) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 || a.stopRequested(ctx) {
		return
	}
	select {
	case <-a.stopCh:
	case <-ctx.Done():
	case <-a.clock.After(d):
	}
}

// safeIterate runs one iteration, converting a panic into an IterationError.
func (a *Agent) safeIterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &IterationError{Stage: StagePanic, Err: fmt.Errorf("%v", r)}
		}
	}()
	return a.iterate(ctx)
}

func (a *Agent) recordFailure(err error, failures int) {
	stage := StagePanic
	var iterErr *IterationError
	if errors.As(err, &iterErr) {
		stage = iterErr.Stage
	}
	observability.RecordIterationFailure(string(stage))
	a.logger.Printf("iteration failed (%d consecutive), backing off %s: %v", failures, a.backoff, err)

	a.mu.Lock()
	a.lastErr = err.Error()
	a.lastUpdate = a.clock.Now()
	a.mu.Unlock()
	a.publish(Event{Type: EventError, Error: err.Error()})
}

// publish fills the agent id, time and snapshot and fans e out to sinks.
// It is only called from the goroutine executing Run, so sinks see events
// in order and never after the terminal status event.
func (a *Agent) publish(e Event) {
	if len(a.sinks) == 0 {
		return
	}
	e.AgentID = a.cfg.AgentID
	e.Time = a.clock.Now()
	e.Snapshot = a.Snapshot()
	for _, s := range a.sinks {
		s.Publish(e)
	}
}

// progress is traded/target as a percentage capped at 100.
func progress(traded, target float64) float64 {
	if target <= 0 {
		return 100
	}
	p := traded / target * 100
	if p > 100 {
		return 100
	}
	return math.Round(p*100) / 100
}
