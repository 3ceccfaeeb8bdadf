package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the centralized Prometheus metric set for turn processing.
//
// Tracked signals:
//   - Turn counts and durations per outcome
//   - Model invocation latency and token usage per provider/model
//   - Capability execution counts and latency
//   - Duplicate blocks and fallback recoveries
//   - Active session counts
type Metrics struct {
	// TurnCounter counts completed turns.
	// Labels: outcome (done|round_cap|loop_signal|model_error|cancelled)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures whole-turn latency in seconds.
	TurnDuration prometheus.Histogram

	// LLMRequestDuration measures model invocation latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model invocations.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts capability invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures capability execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// DuplicateBlocks counts tool calls blocked by the duplicate guard.
	// Labels: tool_name
	DuplicateBlocks *prometheus.CounterVec

	// FallbackRecoveries counts degenerate model outputs replaced by the
	// fallback generator.
	// Labels: source (tool_result|apology)
	FallbackRecoveries *prometheus.CounterVec

	// ErrorCounter tracks errors by component and type.
	// Labels: component (turn|tool|session|provider), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge of sessions with a turn in flight.
	ActiveSessions prometheus.Gauge

	// DatabaseQueryDuration measures database query latency.
	// Labels: operation (select|insert|update|delete), table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts database queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_turns_total",
				Help: "Total number of completed turns by outcome",
			},
			[]string{"outcome"},
		),

		TurnDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mentor_turn_duration_seconds",
				Help:    "Duration of whole turns in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mentor_llm_request_duration_seconds",
				Help:    "Duration of model invocations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_llm_requests_total",
				Help: "Total number of model invocations by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_tool_executions_total",
				Help: "Total number of capability executions by name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mentor_tool_execution_duration_seconds",
				Help:    "Duration of capability executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		DuplicateBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_duplicate_blocks_total",
				Help: "Total number of tool calls blocked as duplicates",
			},
			[]string{"tool_name"},
		),

		FallbackRecoveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_fallback_recoveries_total",
				Help: "Total number of degenerate model outputs replaced by the fallback generator",
			},
			[]string{"source"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mentor_active_sessions",
				Help: "Current number of sessions with a turn in flight",
			},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mentor_database_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentor_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// RecordTurn records a completed turn with its outcome.
func (m *Metrics) RecordTurn(outcome string, durationSeconds float64) {
	m.TurnCounter.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordLLMRequest records metrics for one model invocation.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for one capability execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordDuplicateBlock records a tool call blocked by the duplicate guard.
func (m *Metrics) RecordDuplicateBlock(toolName string) {
	m.DuplicateBlocks.WithLabelValues(toolName).Inc()
}

// RecordFallback records a fallback recovery and where the replacement
// text came from.
func (m *Metrics) RecordFallback(source string) {
	m.FallbackRecoveries.WithLabelValues(source).Inc()
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// TurnStarted increments the active sessions gauge.
func (m *Metrics) TurnStarted() {
	m.ActiveSessions.Inc()
}

// TurnEnded decrements the active sessions gauge.
func (m *Metrics) TurnEnded() {
	m.ActiveSessions.Dec()
}

// RecordDatabaseQuery records metrics for one database query.
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
