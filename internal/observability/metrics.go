package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting pipeline metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM call volume, retries, and latency per backend
//   - Queries that fell back to their original text
//   - Retrieval request volume and latency per retriever
//   - Grid cell outcomes by terminal state
//   - Evaluation scoring latency
type Metrics struct {
	// LLMCalls counts LLM generation calls.
	// Labels: llm, status (success|error)
	LLMCalls *prometheus.CounterVec

	// LLMRetries counts retried LLM calls.
	// Labels: llm
	LLMRetries *prometheus.CounterVec

	// LLMCallDuration measures LLM call latency in seconds.
	// Labels: llm
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMCallDuration *prometheus.HistogramVec

	// FallbackRows counts queries emitted with their original text after
	// all generation attempts failed.
	// Labels: method, llm
	FallbackRows *prometheus.CounterVec

	// RetrievalRequests counts retrieval searches.
	// Labels: retriever, status (success|error)
	RetrievalRequests *prometheus.CounterVec

	// RetrievalDuration measures retrieval search latency in seconds.
	// Labels: retriever
	// Buckets: 0.05s, 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s
	RetrievalDuration *prometheus.HistogramVec

	// CellsCompleted counts grid cells by terminal state.
	// Labels: state (done|failed|skipped)
	CellsCompleted *prometheus.CounterVec

	// EvalDuration measures evaluation scoring latency in seconds.
	// Labels: dataset
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s
	EvalDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWith registers the metrics with a caller-supplied registerer.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		LLMCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformbench_llm_calls_total",
				Help: "Total number of LLM generation calls by backend and status",
			},
			[]string{"llm", "status"},
		),

		LLMRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformbench_llm_retries_total",
				Help: "Total number of retried LLM calls by backend",
			},
			[]string{"llm"},
		),

		LLMCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reformbench_llm_call_duration_seconds",
				Help:    "Duration of LLM generation calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"llm"},
		),

		FallbackRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformbench_fallback_rows_total",
				Help: "Total number of queries that kept their original text",
			},
			[]string{"method", "llm"},
		),

		RetrievalRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformbench_retrieval_requests_total",
				Help: "Total number of retrieval searches by retriever and status",
			},
			[]string{"retriever", "status"},
		),

		RetrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reformbench_retrieval_duration_seconds",
				Help:    "Duration of retrieval searches in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"retriever"},
		),

		CellsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformbench_cells_total",
				Help: "Total number of grid cells by terminal state",
			},
			[]string{"state"},
		),

		EvalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reformbench_eval_duration_seconds",
				Help:    "Duration of evaluation scoring in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"dataset"},
		),
	}
}

// RecordLLMCall records one LLM generation call outcome.
func (m *Metrics) RecordLLMCall(llm, status string, durationSeconds float64) {
	m.LLMCalls.WithLabelValues(llm, status).Inc()
	m.LLMCallDuration.WithLabelValues(llm).Observe(durationSeconds)
}

// RecordRetrieval records one retrieval search outcome.
func (m *Metrics) RecordRetrieval(retriever, status string, durationSeconds float64) {
	m.RetrievalRequests.WithLabelValues(retriever, status).Inc()
	m.RetrievalDuration.WithLabelValues(retriever).Observe(durationSeconds)
}

// CellFinished records a grid cell reaching a terminal state.
func (m *Metrics) CellFinished(state string) {
	m.CellsCompleted.WithLabelValues(state).Inc()
}
