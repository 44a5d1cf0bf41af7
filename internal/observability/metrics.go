package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	apiRequestsTotal         *prometheus.CounterVec
	apiLatencySeconds        *prometheus.HistogramVec
	apiErrorsTotal           *prometheus.CounterVec
	reschedulesTotal         *prometheus.CounterVec
	instanceGenerationsTotal *prometheus.CounterVec
	reportBuildSeconds       prometheus.Histogram
	rescheduleEventsTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the
// progress API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		reschedulesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_reschedules_total",
			Help: "Total number of assessment window reschedule attempts by outcome.",
		}, []string{"outcome"})

		instanceGenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_instance_generations_total",
			Help: "Total number of shuffled instance set generations by quality.",
		}, []string{"quality"})

		reportBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "progress_report_build_seconds",
			Help:    "Time spent assembling comprehensive progress reports.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		})

		rescheduleEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reschedule_events_published_total",
			Help: "Total number of reschedule lifecycle events published.",
		}, []string{"type"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			reschedulesTotal,
			instanceGenerationsTotal,
			reportBuildSeconds,
			rescheduleEventsTotal,
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

// Reschedules exposes the reschedule outcome counter.
func Reschedules() *prometheus.CounterVec {
	RegisterMetrics()
	return reschedulesTotal
}

// InstanceGenerations exposes the instance generation counter.
func InstanceGenerations() *prometheus.CounterVec {
	RegisterMetrics()
	return instanceGenerationsTotal
}

// ReportBuildDuration exposes the report assembly histogram.
func ReportBuildDuration() prometheus.Histogram {
	RegisterMetrics()
	return reportBuildSeconds
}

// RescheduleEvents exposes the published lifecycle event counter.
func RescheduleEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return rescheduleEventsTotal
}
