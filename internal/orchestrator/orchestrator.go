// Package orchestrator wires the campaign pipeline from configuration.
// It coordinates: intake → create_agent → execute_trading → metrics
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"airdrop-optimizer/internal/advisory"
	"airdrop-optimizer/internal/campaignfeed"
	"airdrop-optimizer/internal/config"
	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/httpapi"
	"airdrop-optimizer/internal/market"
	"airdrop-optimizer/internal/metrics"
	"airdrop-optimizer/internal/pipeline"
	"airdrop-optimizer/internal/prediction"
	"airdrop-optimizer/internal/queue"
	"airdrop-optimizer/internal/randsrc"
	"airdrop-optimizer/internal/statusfeed"
	"airdrop-optimizer/internal/storage"
	chstore "airdrop-optimizer/internal/storage/clickhouse"
	"airdrop-optimizer/internal/storage/memory"
	"airdrop-optimizer/internal/storage/migrations"
	pgstore "airdrop-optimizer/internal/storage/postgres"
	redisstore "airdrop-optimizer/internal/storage/redis"
	"airdrop-optimizer/internal/trading"
)

// Stores groups the record sets the pipeline persists.
type Stores struct {
	Campaigns storage.CampaignStore
	Jobs      storage.JobStore
	Summaries storage.MetricsStore
	Trades    storage.TradeStore
}

// Options overrides parts of the wiring. Zero values select the
// configured production components.
type Options struct {
	Stores    *Stores           // nil builds stores from cfg.Storage
	Predictor trading.Predictor // nil builds the prediction ensemble
	Prices    market.PriceFeed  // nil uses the market simulator
	ChatModel advisory.ChatModel
	Clock     trading.Clock
	Now       func() time.Time
	Logger    *log.Logger
}

// Orchestrator owns every long-lived component of the service.
type Orchestrator struct {
	cfg    *config.Config
	logger *log.Logger

	stores     *Stores
	market     *market.Store
	registry   *trading.Registry
	aggregator *metrics.Aggregator
	queue      *queue.Queue
	dispatcher *queue.Dispatcher
	intake     *pipeline.Intake
	hub        *statusfeed.Hub
	sweeper    *queue.Sweeper
	feed       campaignfeed.Source // nil when no feed is configured
	api        http.Handler

	closers []func()
}

// New builds the service from cfg. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Orchestrator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	o := &Orchestrator{cfg: cfg, logger: logger}

	if opts.Stores != nil {
		o.stores = opts.Stores
	} else if err := o.openStores(ctx); err != nil {
		o.Close()
		return nil, err
	}

	var rng randsrc.Source = randsrc.New()
	if cfg.Trading.Seed != 0 {
		rng = randsrc.NewSeeded(cfg.Trading.Seed)
	}

	o.market = market.NewStore(market.StoreOptions{
		Rand:   rng,
		Now:    opts.Now,
		Logger: o.componentLogger("market"),
	})

	predictor := opts.Predictor
	if predictor == nil {
		advisor, err := o.advisor(ctx, opts.ChatModel)
		if err != nil {
			o.Close()
			return nil, err
		}
		ensemble, err := prediction.NewEnsemble(prediction.Options{
			Store:               o.market,
			Advisor:             advisor,
			Rand:                rng,
			OverrideProbability: cfg.Trading.OverrideProbability,
			Logger:              o.componentLogger("ensemble"),
		})
		if err != nil {
			o.Close()
			return nil, fmt.Errorf("build ensemble: %w", err)
		}
		predictor = ensemble
	}

	prices := opts.Prices
	if prices == nil {
		prices = market.NewSimulator(rng)
	}

	o.registry = trading.NewRegistry()
	o.aggregator = metrics.NewAggregator(o.stores.Trades, o.stores.Summaries)
	o.queue = queue.New(o.stores.Jobs)
	o.hub = statusfeed.NewHub(o.componentLogger("statusfeed"))

	o.dispatcher = queue.NewDispatcher(queue.DispatcherOptions{
		Store:        o.stores.Jobs,
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
		StoreRetries: cfg.Queue.StoreRetries,
		Logger:       o.componentLogger("dispatcher"),
	})

	handlers := pipeline.NewHandlers(pipeline.HandlerOptions{
		Campaigns:              o.stores.Campaigns,
		Jobs:                   o.stores.Jobs,
		Queue:                  o.queue,
		Registry:               o.registry,
		Aggregator:             o.aggregator,
		Predictor:              predictor,
		Prices:                 prices,
		Sinks:                  []trading.EventSink{o.hub},
		AutoStart:              cfg.Trading.AutoStart,
		InitialBalance:         cfg.Trading.InitialBalance,
		FailureBackoff:         cfg.Trading.FailureBackoff,
		MaxConsecutiveFailures: cfg.Trading.MaxConsecutiveFailures,
		ProgressEvery:          cfg.Trading.ProgressEvery,
		Rand:                   rng,
		Clock:                  opts.Clock,
		Now:                    opts.Now,
		Logger:                 o.componentLogger("handlers"),
	})
	handlers.Register(o.dispatcher)

	o.intake = pipeline.NewIntake(pipeline.IntakeOptions{
		Campaigns: o.stores.Campaigns,
		Queue:     o.queue,
		Threshold: cfg.Trading.ViabilityThreshold,
		Now:       opts.Now,
		Logger:    o.componentLogger("intake"),
	})

	o.sweeper = queue.NewSweeper(o.stores.Jobs, cfg.Queue.Retention, cfg.Queue.SweepEvery, o.componentLogger("sweeper"))
	o.feed = o.campaignSource()

	o.api = httpapi.New(httpapi.Options{
		Intake:    o.intake,
		Jobs:      o.stores.Jobs,
		Campaigns: o.stores.Campaigns,
		Registry:  o.registry,
		Summaries: o.stores.Summaries,
		Trades:    o.stores.Trades,
		Feed:      o.hub,
		Logger:    o.componentLogger("http"),
	})

	return o, nil
}

// openStores connects the configured backend and applies migrations.
func (o *Orchestrator) openStores(ctx context.Context) error {
	sc := o.cfg.Storage
	o.stores = &Stores{
		Campaigns: memory.NewCampaignStore(),
		Jobs:      memory.NewJobStore(),
		Summaries: memory.NewMetricsStore(),
		Trades:    memory.NewTradeStore(),
	}
	if sc.Backend == config.BackendMemory {
		o.logger.Println("Using in-memory storage")
		return nil
	}

	if sc.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, sc.PostgresDSN, sc.PostgresConns)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		o.closers = append(o.closers, pool.Close)
		if err := migrations.ApplyPostgres(ctx, pool); err != nil {
			return err
		}
		o.stores.Campaigns = pgstore.NewCampaignStore(pool)
		o.stores.Jobs = pgstore.NewJobStore(pool)
		o.stores.Summaries = pgstore.NewMetricsStore(pool)
	}

	if sc.ClickhouseDSN != "" {
		conn, err := migrations.ApplyClickhouse(ctx, sc.ClickhouseDSN)
		if err != nil {
			return err
		}
		o.closers = append(o.closers, func() { conn.Close() })
		o.stores.Trades = chstore.NewTradeStore(conn)
	}

	if sc.Backend == config.BackendRedis {
		client, err := redisstore.NewClient(ctx, sc.RedisAddr, sc.RedisPassword, sc.RedisDB)
		if err != nil {
			return err
		}
		o.closers = append(o.closers, func() { client.Close() })
		o.stores.Jobs = redisstore.NewJobStore(client, sc.RedisPrefix)
	}

	o.logger.Printf("Using %s storage (postgres=%t clickhouse=%t)",
		sc.Backend, sc.PostgresDSN != "", sc.ClickhouseDSN != "")
	return nil
}

// advisor returns the LLM-backed advisory client, or Disabled when no
// API key is configured.
func (o *Orchestrator) advisor(ctx context.Context, chat advisory.ChatModel) (advisory.Client, error) {
	ac := o.cfg.Advisory
	if chat == nil {
		if ac.APIKey == "" {
			o.logger.Println("Advisory disabled: no API key configured")
			return advisory.Disabled{}, nil
		}
		m, err := advisory.NewOpenAIChatModel(ctx, ac.BaseURL, ac.APIKey, ac.Model, ac.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("build advisory model: %w", err)
		}
		chat = m
	}
	return advisory.NewLLMClient(chat,
		advisory.WithTimeout(ac.Timeout),
		advisory.WithRateLimit(ac.RatePerMinute, 1),
		advisory.WithLogger(o.componentLogger("advisory")),
	), nil
}

func (o *Orchestrator) campaignSource() campaignfeed.Source {
	fc := o.cfg.Feed
	var src campaignfeed.Source
	switch {
	case fc.URL != "":
		src = campaignfeed.NewHTTPSource(fc.URL, fc.Timeout, fc.Retries)
	case fc.File != "":
		src = campaignfeed.NewFileSource(fc.File)
	default:
		return nil
	}
	if fc.Fallback {
		src = campaignfeed.WithFallback(src, campaignfeed.DefaultCampaigns, o.componentLogger("campaignfeed"))
	}
	return src
}

// FetchCampaigns reads the configured campaign feed, or the built-in
// campaigns when no feed is configured.
func (o *Orchestrator) FetchCampaigns(ctx context.Context) ([]domain.RawCampaign, error) {
	if o.feed == nil {
		return campaignfeed.DefaultCampaigns.Fetch(ctx)
	}
	return o.feed.Fetch(ctx)
}

// Handler returns the HTTP API.
func (o *Orchestrator) Handler() http.Handler { return o.api }

// Intake returns the campaign intake.
func (o *Orchestrator) Intake() *pipeline.Intake { return o.intake }

// Stores returns the active record sets.
func (o *Orchestrator) Stores() *Stores { return o.stores }

// Run drives the background loops until ctx is canceled. The dispatcher
// error, if any, is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Printf("Starting orchestrator (workers=%d, auto_start=%t)",
		o.cfg.Queue.Workers, o.cfg.Trading.AutoStart)

	go o.sweeper.Run(ctx)
	go o.market.RunJanitor(ctx, o.cfg.Market.JanitorEvery, o.cfg.Market.IdleTTL)
	go o.runPruner(ctx)
	if o.feed != nil {
		go o.runFeed(ctx)
	}

	err := o.dispatcher.Run(ctx)
	o.hub.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("dispatcher: %w", err)
	}
	return nil
}

// runPruner drops finished agents from the registry once their results
// are past retention. Their summaries stay reachable through the stores.
func (o *Orchestrator) runPruner(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Queue.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.registry.Prune(time.Now().Add(-o.cfg.Queue.Retention)); n > 0 {
				o.logger.Printf("Pruned %d finished agent(s)", n)
			}
		}
	}
}

// runFeed polls the campaign feed on schedule, starting immediately.
func (o *Orchestrator) runFeed(ctx context.Context) {
	o.logger.Printf("Starting campaign feed (interval: %v)...", o.cfg.Feed.Interval)

	o.pollFeed(ctx)

	ticker := time.NewTicker(o.cfg.Feed.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pollFeed(ctx)
		}
	}
}

func (o *Orchestrator) pollFeed(ctx context.Context) {
	raws, err := o.feed.Fetch(ctx)
	if err != nil {
		o.logger.Printf("Campaign feed error: %v", err)
		return
	}
	res, err := o.intake.SubmitAll(ctx, raws)
	if err != nil {
		o.logger.Printf("Campaign submission error: %v", err)
		return
	}
	o.logger.Printf("Campaign feed: %d fetched, %d submitted, %d rejected, %d invalid",
		len(raws), len(res.Submitted), res.Rejected, res.Invalid)
}

// Outcome is the end state of one submitted campaign.
type Outcome struct {
	Campaign domain.Campaign               `json:"campaign"`
	AgentID  string                        `json:"agent_id,omitempty"`
	Summary  *domain.TradingMetricsSummary `json:"summary,omitempty"`
	Err      string                        `json:"error,omitempty"`
}

// Report summarizes a one-shot run.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
	Rejected int       `json:"rejected"`
	Invalid  int       `json:"invalid"`
}

// RunOnce submits raws, processes every resulting job and waits for the
// trading runs to finish. The dispatcher runs only for the duration of
// the call, so RunOnce must not be combined with Run.
func (o *Orchestrator) RunOnce(ctx context.Context, raws []domain.RawCampaign) (*Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.dispatcher.Run(runCtx) }()

	report, err := o.runOnce(runCtx, raws)
	cancel()
	if derr := <-done; derr != nil && !errors.Is(derr, context.Canceled) && err == nil {
		err = fmt.Errorf("dispatcher: %w", derr)
	}
	return report, err
}

func (o *Orchestrator) runOnce(ctx context.Context, raws []domain.RawCampaign) (*Report, error) {
	batch, err := o.intake.SubmitAll(ctx, raws)
	report := &Report{Rejected: batch.Rejected, Invalid: batch.Invalid}
	if err != nil {
		return report, err
	}

	poll := o.cfg.Queue.PollInterval
	for _, sub := range batch.Submitted {
		out := Outcome{Campaign: sub.Campaign}
		if sub.JobID == "" {
			out.Err = "already submitted"
			report.Outcomes = append(report.Outcomes, out)
			continue
		}

		var created pipeline.CreateAgentResult
		if err := waitJSON(ctx, o.stores.Jobs, sub.JobID, poll, &created); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			out.Err = err.Error()
			report.Outcomes = append(report.Outcomes, out)
			continue
		}
		out.AgentID = created.AgentID

		var summary domain.TradingMetricsSummary
		if err := waitJSON(ctx, o.stores.Jobs, created.TradingJobID, poll, &summary); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			out.Err = err.Error()
		} else {
			out.Summary = &summary
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	return report, nil
}

// waitJSON waits for job id and decodes its result into v. A failed job
// yields its recorded error.
func waitJSON(ctx context.Context, jobs storage.JobStore, id string, poll time.Duration, v any) error {
	res, err := queue.NewHandle(jobs, id).Wait(ctx, poll)
	if err != nil {
		return err
	}
	if res.Status == domain.JobStatusFailed {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(res.Result, &failure) == nil && failure.Error != "" {
			return errors.New(failure.Error)
		}
		return fmt.Errorf("job %s failed", id)
	}
	if err := json.Unmarshal(res.Result, v); err != nil {
		return fmt.Errorf("decode result of job %s: %w", id, err)
	}
	return nil
}

// Close releases storage connections in reverse order of opening.
func (o *Orchestrator) Close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}
	o.closers = nil
}

// componentLogger shares the orchestrator's output under its own prefix.
func (o *Orchestrator) componentLogger(name string) *log.Logger {
	return log.New(o.logger.Writer(), "["+name+"] ", log.LstdFlags|log.Lshortfile)
}
