// Package metrics holds the Prometheus registry and collectors for the API
// and the optimization engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OptimizeRuns counts optimization runs by scope and result status.
	OptimizeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimize_runs_total", Help: "Optimization runs by scope and status."},
		[]string{"scope", "status"},
	)
	// OptimizeDuration records wall-clock solve time per run.
	OptimizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimize_duration_seconds", Help: "Optimization run duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}},
		[]string{"scope"},
	)
	// SolverIterations records ALNS iterations completed per day solved.
	SolverIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_iterations", Help: "ALNS iterations per solved day.", Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000}},
	)
	// UnassignedStops counts stops left unassigned, by reason.
	UnassignedStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "unassigned_stops_total", Help: "Stops the solver could not place, by reason."},
		[]string{"reason"},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry exactly once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OptimizeRuns)
		Registry.MustRegister(OptimizeDuration)
		Registry.MustRegister(SolverIterations)
		Registry.MustRegister(UnassignedStops)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
