// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Intake metrics
	CampaignsEvaluated *prometheus.CounterVec
	ViabilityScores    prometheus.Histogram

	// Queue metrics
	JobsEnqueued       *prometheus.CounterVec
	JobsFinished       *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	ResultStoreRetries prometheus.Counter
	JobsCleanedUp      prometheus.Counter

	// Agent metrics
	RunningAgents     prometheus.Gauge
	AgentsFinished    *prometheus.CounterVec
	TradesExecuted    *prometheus.CounterVec
	IterationFailures *prometheus.CounterVec

	// Prediction metrics
	EnsembleDecisions *prometheus.CounterVec
	AdvisoryCalls     *prometheus.CounterVec
	AdvisoryLatency   *prometheus.HistogramVec
	AdvisoryFallbacks *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastJobCompleted prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "airdrop_optimizer"
	}

	return &Metrics{
		// Intake metrics
		CampaignsEvaluated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "campaigns_evaluated_total",
			Help:      "Total number of campaigns evaluated by outcome",
		}, []string{"outcome"}),
		ViabilityScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "viability_score",
			Help:      "Distribution of campaign viability scores",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),

		// Queue metrics
		JobsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_enqueued_total",
			Help:      "Total number of jobs enqueued by kind",
		}, []string{"kind"}),
		JobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs finished by kind and status",
		}, []string{"kind", "status"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Job execution duration in seconds",
			Buckets:   []float64{0.01, 0.1, 1, 5, 30, 60, 300, 900, 3600},
		}, []string{"kind"}),
		ResultStoreRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "result_store_retries_total",
			Help:      "Total number of retried job result writes",
		}),
		JobsCleanedUp: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "records_cleaned_up_total",
			Help:      "Total number of jobs and results removed by retention",
		}),

		// Agent metrics
		RunningAgents: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "running",
			Help:      "Number of agents currently running",
		}),
		AgentsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "finished_total",
			Help:      "Total number of agents finished by final status",
		}, []string{"status"}),
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "trades_total",
			Help:      "Total number of simulated trades by action and outcome",
		}, []string{"action", "success"}),
		IterationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "iteration_failures_total",
			Help:      "Total number of failed loop iterations by stage",
		}, []string{"stage"}),

		// Prediction metrics
		EnsembleDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "decisions_total",
			Help:      "Total number of ensemble decisions by action",
		}, []string{"action", "overridden"}),
		AdvisoryCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "advisory",
			Name:      "calls_total",
			Help:      "Total number of advisory calls by source and outcome",
		}, []string{"source", "outcome"}),
		AdvisoryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "advisory",
			Name:      "call_latency_seconds",
			Help:      "Advisory call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		AdvisoryFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "fallbacks_total",
			Help:      "Total number of signal sources that fell back to local rules",
		}, []string{"source"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastJobCompleted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_job_completed_timestamp",
			Help:      "Unix timestamp of the last completed job",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCampaignEvaluated records an intake outcome (accepted, rejected, invalid, duplicate).
// A negative score is not observed.
func RecordCampaignEvaluated(outcome string, score float64) {
	DefaultMetrics.CampaignsEvaluated.WithLabelValues(outcome).Inc()
	if score >= 0 {
		DefaultMetrics.ViabilityScores.Observe(score)
	}
}

// RecordJobEnqueued increments the enqueued counter.
func RecordJobEnqueued(kind string) {
	DefaultMetrics.JobsEnqueued.WithLabelValues(kind).Inc()
}

// RecordJobFinished records a finished job and its duration.
func RecordJobFinished(kind, status string, seconds float64, finishedAt int64) {
	DefaultMetrics.JobsFinished.WithLabelValues(kind, status).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(kind).Observe(seconds)
	DefaultMetrics.LastJobCompleted.Set(float64(finishedAt))
}

// RecordResultStoreRetry increments the result write retry counter.
func RecordResultStoreRetry() {
	DefaultMetrics.ResultStoreRetries.Inc()
}

// RecordCleanup adds removed records to the retention counter.
func RecordCleanup(removed int) {
	DefaultMetrics.JobsCleanedUp.Add(float64(removed))
}

// AgentStarted increments the running agents gauge.
func AgentStarted() {
	DefaultMetrics.RunningAgents.Inc()
}

// AgentFinished decrements the running agents gauge and counts the final status.
func AgentFinished(status string) {
	DefaultMetrics.RunningAgents.Dec()
	DefaultMetrics.AgentsFinished.WithLabelValues(status).Inc()
}

// RecordTrade records a simulated trade.
func RecordTrade(action string, success bool) {
	DefaultMetrics.TradesExecuted.WithLabelValues(action, strconv.FormatBool(success)).Inc()
}

// RecordIterationFailure records a failed loop iteration.
func RecordIterationFailure(stage string) {
	DefaultMetrics.IterationFailures.WithLabelValues(stage).Inc()
}

// RecordEnsembleDecision records the final ensemble action.
func RecordEnsembleDecision(action string, overridden bool) {
	DefaultMetrics.EnsembleDecisions.WithLabelValues(action, strconv.FormatBool(overridden)).Inc()
}

// RecordAdvisoryCall records an advisory call outcome and latency.
func RecordAdvisoryCall(source, outcome string, seconds float64) {
	DefaultMetrics.AdvisoryCalls.WithLabelValues(source, outcome).Inc()
	DefaultMetrics.AdvisoryLatency.WithLabelValues(source).Observe(seconds)
}

// RecordAdvisoryFallback records a signal source falling back to its local rule.
func RecordAdvisoryFallback(source string) {
	DefaultMetrics.AdvisoryFallbacks.WithLabelValues(source).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
