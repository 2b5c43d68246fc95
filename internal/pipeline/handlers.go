package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/market"
	"airdrop-optimizer/internal/metrics"
	"airdrop-optimizer/internal/queue"
	"airdrop-optimizer/internal/randsrc"
	"airdrop-optimizer/internal/risk"
	"airdrop-optimizer/internal/storage"
	"airdrop-optimizer/internal/trading"
)

// DefaultProgressEvery throttles interim progress results per trading job.
const DefaultProgressEvery = time.Second

// CreateAgentResult is the result of a create_agent job.
type CreateAgentResult struct {
	AgentID      string          `json:"agent_id"`
	CampaignID   string          `json:"campaign_id"`
	RiskTier     domain.RiskTier `json:"risk_tier"`
	TradingJobID string          `json:"trading_job_id"`
}

// HandlerOptions configures the job handlers.
type HandlerOptions struct {
	Campaigns  storage.CampaignStore
	Jobs       storage.JobStore // interim progress results
	Queue      *queue.Queue
	Registry   *trading.Registry
	Aggregator *metrics.Aggregator
	Predictor  trading.Predictor
	Prices     market.PriceFeed
	Sinks      []trading.EventSink

	// AutoStart starts agents as soon as their trading job runs. Otherwise
	// they wait in initializing for an external start.
	AutoStart bool

	InitialBalance         float64
	FailureBackoff         time.Duration
	MaxConsecutiveFailures int
	ProgressEvery          time.Duration

	Rand   randsrc.Source // shared by every agent; nil seeds one per agent
	Clock  trading.Clock
	Now    func() time.Time
	Logger *log.Logger
}

// Handlers implements the create_agent and execute_trading jobs.
type Handlers struct {
	opts   HandlerOptions
	logger *log.Logger
}

// NewHandlers creates the job handlers.
func NewHandlers(opts HandlerOptions) *Handlers {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{opts: opts, logger: logger}
}

// Register installs both handlers on d.
func (h *Handlers) Register(d *queue.Dispatcher) {
	d.Handle(domain.JobKindCreateAgent, h.CreateAgent)
	d.Handle(domain.JobKindExecuteTrading, h.ExecuteTrading)
}

// CreateAgent configures the agent of a campaign, links it to the campaign
// and enqueues its trading job.
func (h *Handlers) CreateAgent(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var p CreateAgentPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode create_agent payload: %w", err)
	}
	if p.CampaignID == "" {
		return nil, fmt.Errorf("create_agent payload has no campaign_id")
	}

	c, err := h.opts.Campaigns.GetByID(ctx, p.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", p.CampaignID, err)
	}

	cfg, err := risk.Configure(*c, h.opts.Now())
	if err != nil {
		return nil, err
	}

	if err := h.opts.Campaigns.SetAgent(ctx, c.CampaignID, cfg.AgentID); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("campaign %s already has an agent: %w", c.CampaignID, err)
		}
		return nil, fmt.Errorf("link agent %s: %w", cfg.AgentID, err)
	}

	th, err := h.opts.Queue.Submit(ctx, domain.JobKindExecuteTrading, cfg)
	if err != nil {
		return nil, err
	}
	h.logger.Printf("configured %s for campaign %s: tier %s, trading job %s", cfg.AgentID, c.CampaignID, cfg.RiskTier, th.ID())

	return json.Marshal(CreateAgentResult{
		AgentID:      cfg.AgentID,
		CampaignID:   c.CampaignID,
		RiskTier:     cfg.RiskTier,
		TradingJobID: th.ID(),
	})
}

// ExecuteTrading runs an agent to completion and persists its trades and
// summary. The summary is the job result.
func (h *Handlers) ExecuteTrading(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var cfg domain.AgentConfig
	if err := json.Unmarshal(job.Payload, &cfg); err != nil {
		return nil, fmt.Errorf("decode execute_trading payload: %w", err)
	}

	sinks := append([]trading.EventSink(nil), h.opts.Sinks...)
	if h.opts.Jobs != nil {
		sinks = append(sinks, &progressSink{
			ctx:    context.WithoutCancel(ctx),
			store:  h.opts.Jobs,
			jobID:  job.JobID,
			every:  h.opts.ProgressEvery,
			logger: h.logger,
		})
	}

	agent, err := trading.NewAgent(trading.Options{
		Config:                 cfg,
		Predictor:              h.opts.Predictor,
		Prices:                 h.opts.Prices,
		Rand:                   h.opts.Rand,
		Clock:                  h.opts.Clock,
		Logger:                 log.New(h.logger.Writer(), fmt.Sprintf("[agent %s] ", cfg.AgentID), log.LstdFlags|log.Lshortfile),
		Sinks:                  sinks,
		InitialBalance:         h.opts.InitialBalance,
		FailureBackoff:         h.opts.FailureBackoff,
		MaxConsecutiveFailures: h.opts.MaxConsecutiveFailures,
	})
	if err != nil {
		return nil, err
	}
	if err := h.opts.Registry.Register(agent); err != nil {
		return nil, err
	}
	if h.opts.AutoStart {
		if err := agent.Start(); err != nil {
			return nil, err
		}
	}

	summary, err := agent.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run agent %s: %w", cfg.AgentID, err)
	}
	h.logger.Printf("agent %s %s: %d trades, volume %.2f, pnl %.2f",
		summary.AgentID, summary.FinalStatus, summary.TotalTrades, summary.TradedVolume, summary.ProfitLoss)

	if h.opts.Aggregator != nil {
		if err := h.opts.Aggregator.Record(context.WithoutCancel(ctx), summary, agent.Trades()); err != nil {
			return nil, fmt.Errorf("persist metrics of %s: %w", cfg.AgentID, err)
		}
	}
	return json.Marshal(summary)
}

// progressSink stores the agent snapshot as an interim PROCESSING result.
// Status changes are always written, other events at most once per every.
// Nothing is written after the agent's terminal status event; the handler
// returns only after that event, so the final result is stored last.
type progressSink struct {
	ctx    context.Context
	store  storage.JobStore
	jobID  string
	every  time.Duration
	logger *log.Logger

	mu   sync.Mutex
	last time.Time
	done bool
}

func (p *progressSink) Publish(e trading.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	if e.Type != trading.EventStatus && e.Time.Sub(p.last) < p.every {
		return
	}
	p.last = e.Time
	if e.Type == trading.EventStatus && e.Snapshot.Status.IsTerminal() {
		p.done = true
	}

	b, err := json.Marshal(e.Snapshot)
	if err != nil {
		return
	}
	if err := p.store.StoreResult(p.ctx, p.jobID, b, domain.JobStatusProcessing); err != nil {
		p.logger.Printf("job %s: store progress: %v", p.jobID, err)
	}
}
