package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	evaluationsTotal      *prometheus.CounterVec
	evaluationLatency     *prometheus.HistogramVec
	pipelineActionsTotal  *prometheus.CounterVec
	analyticsComputeTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradeflow_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_evaluations_total",
			Help: "Total number of pipeline evaluations, labelled by terminal code.",
		}, []string{"code"})

		evaluationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradeflow_evaluation_duration_seconds",
			Help:    "Wall-clock duration of full pipeline evaluations.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"staff"})

		pipelineActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_pipeline_actions_total",
			Help: "Per-action pipeline outcomes.",
		}, []string{"kind", "outcome"})

		analyticsComputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_analytics_computes_total",
			Help: "Analytics block computations, labelled by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			evaluationsTotal,
			evaluationLatency,
			pipelineActionsTotal,
			analyticsComputeTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Evaluations exposes the counter for completed pipeline evaluations.
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// EvaluationDuration exposes the evaluation duration histogram.
func EvaluationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return evaluationLatency
}

// PipelineActions exposes the per-action outcome counter.
func PipelineActions() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineActionsTotal
}

// AnalyticsComputes exposes the analytics computation counter.
func AnalyticsComputes() *prometheus.CounterVec {
	RegisterMetrics()
	return analyticsComputeTotal
}
