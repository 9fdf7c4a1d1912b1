package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Task outcomes by classified domain
//   - LLM request performance, token usage, and estimated cost
//   - Tool execution counts and latencies
//   - Safety gate violations by kind
//   - Error rates categorized by component
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordTask("coding", true, time.Since(start).Seconds())
type Metrics struct {
	// TaskCounter tracks completed tasks by domain and outcome.
	// Labels: domain, status (success|failure)
	TaskCounter *prometheus.CounterVec

	// TaskDuration measures end-to-end task execution time in seconds.
	// Labels: domain
	// Buckets: 1s, 5s, 15s, 30s, 60s, 120s, 300s, 600s
	TaskDuration *prometheus.HistogramVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: endpoint, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by endpoint and model.
	// Labels: endpoint, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: endpoint, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: endpoint, model
	LLMCostUSD *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// GateViolations counts safety gate rejections by violation kind.
	// Labels: kind (path_escape|protected_path|denied_command|not_allowlisted)
	GateViolations *prometheus.CounterVec

	// SubAgentsActive is a gauge tracking sub-agents currently dispatched
	// by the Sub-Agent Pool.
	SubAgentsActive prometheus.Gauge

	// ContextWindowUsed tracks context window utilization per LLM call.
	// Labels: endpoint, model
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000
	ContextWindowUsed *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and error type.
	// Labels: component, error_type
	ErrorCounter *prometheus.CounterVec

	// RunAttempts counts workflow run attempts by outcome, for retry
	// tracking across the plan/execute/reflect loop.
	// Labels: status (success|retry|failed)
	RunAttempts *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process-wide Metrics instance, registering it with
// Prometheus's default registry on first call. Safe to call from multiple
// call sites (e.g. orchestrator.New invoked more than once in a process)
// since promauto panics on double registration otherwise.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		TaskCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_tasks_total",
				Help: "Total number of tasks executed by domain and outcome",
			},
			[]string{"domain", "status"},
		),

		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_task_duration_seconds",
				Help:    "End-to-end task execution duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"domain"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"endpoint", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_llm_requests_total",
				Help: "Total number of LLM requests by endpoint, model, and status",
			},
			[]string{"endpoint", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_llm_tokens_total",
				Help: "Total number of tokens used by endpoint, model, and type",
			},
			[]string{"endpoint", "model", "type"},
		),

		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"endpoint", "model"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		GateViolations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_gate_violations_total",
				Help: "Total number of safety gate rejections by violation kind",
			},
			[]string{"kind"},
		),

		SubAgentsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_subagents_active",
				Help: "Current number of sub-agents dispatched by the pool",
			},
		),

		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_context_window_tokens",
				Help:    "Context window tokens used per LLM call",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"endpoint", "model"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		RunAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_run_attempts_total",
				Help: "Total number of workflow run attempts by status",
			},
			[]string{"status"},
		),
	}
}

// RecordTask records the outcome and duration of a completed task.
func (m *Metrics) RecordTask(domain string, success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.TaskCounter.WithLabelValues(domain, status).Inc()
	m.TaskDuration.WithLabelValues(domain).Observe(durationSeconds)
}

// RecordLLMRequest records metrics for an LLM API request.
func (m *Metrics) RecordLLMRequest(endpoint, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(endpoint, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(endpoint, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(endpoint, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(endpoint, model, "completion").Add(float64(completionTokens))
	}
	if promptTokens > 0 || completionTokens > 0 {
		m.ContextWindowUsed.WithLabelValues(endpoint, model).Observe(float64(promptTokens + completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordGateViolation increments the violation counter for a given kind.
func (m *Metrics) RecordGateViolation(kind string) {
	m.GateViolations.WithLabelValues(kind).Inc()
}

// RecordError increments the error counter for a given component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RecordLLMCost records estimated API cost.
func (m *Metrics) RecordLLMCost(endpoint, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(endpoint, model).Add(costUSD)
}

// RecordRunAttempt records a workflow run attempt.
func (m *Metrics) RecordRunAttempt(status string) {
	m.RunAttempts.WithLabelValues(status).Inc()
}

// SubAgentStarted increments the active sub-agent gauge.
func (m *Metrics) SubAgentStarted() {
	m.SubAgentsActive.Inc()
}

// SubAgentFinished decrements the active sub-agent gauge.
func (m *Metrics) SubAgentFinished() {
	m.SubAgentsActive.Dec()
}
