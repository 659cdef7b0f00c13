package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics exposes counters/histograms for ledger operations.
type WorkflowMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	transitionsTotal  *prometheus.CounterVec
	eventPublishTotal *prometheus.CounterVec
	llmTokensTotal    *prometheus.CounterVec
	llmStopsTotal     *prometheus.CounterVec
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rams",
			Subsystem: "workflow",
			Name:      "operations_total",
			Help:      "Total ledger operations by outcome",
		}, []string{"ledger", "operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rams",
			Subsystem: "workflow",
			Name:      "operation_latency_seconds",
			Help:      "Latency of ledger operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"ledger", "operation"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rams",
			Subsystem: "workflow",
			Name:      "status_transitions_total",
			Help:      "Total status transitions applied to workflow records",
		}, []string{"entity", "from", "to"}),
		eventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rams",
			Subsystem: "events",
			Name:      "publish_total",
			Help:      "Total domain event publish attempts",
		}, []string{"type", "status"}),
		llmTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rams",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens billed by the completion provider",
		}, []string{"model", "direction"}),
		llmStopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rams",
			Subsystem: "llm",
			Name:      "completions_total",
			Help:      "Completions by provider stop reason",
		}, []string{"model", "stop_reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.transitionsTotal, m.eventPublishTotal,
		m.llmTokensTotal, m.llmStopsTotal)
	return m
}

// ObserveOperation records one ledger call. outcome is "ok" or a failure kind.
func (m *WorkflowMetrics) ObserveOperation(ledger, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(ledger, operation, outcome).Inc()
	m.operationLatency.WithLabelValues(ledger, operation).Observe(elapsed.Seconds())
}

func (m *WorkflowMetrics) ObserveTransition(entity, from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(entity, from, to).Inc()
}

func (m *WorkflowMetrics) ObservePublish(eventType string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.eventPublishTotal.WithLabelValues(eventType, status).Inc()
}

// ObserveCompletion records token usage for one completion. Providers that
// report no usage contribute nothing to the token counters.
func (m *WorkflowMetrics) ObserveCompletion(model, stopReason string, inputTokens, outputTokens int32) {
	if m == nil {
		return
	}
	if stopReason == "" {
		stopReason = "unknown"
	}
	m.llmStopsTotal.WithLabelValues(model, stopReason).Inc()
	if inputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}
