package opt

import "sync"

type metricsKey struct {
	Tenant string
	Day    string
	Scope  string
}

var (
	metricsMu sync.Mutex
	metricsBy = map[metricsKey]Metrics{}
)

// RecordMetrics keeps the latest solver metrics per tenant/day/scope for the
// admin surface.
func RecordMetrics(tenant, day, scope string, m Metrics) {
	metricsMu.Lock()
	metricsBy[metricsKey{Tenant: tenant, Day: day, Scope: scope}] = m
	metricsMu.Unlock()
}

// GetMetrics returns recorded metrics for a tenant/day keyed by scope.
func GetMetrics(tenant, day string) map[string]Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := map[string]Metrics{}
	for k, v := range metricsBy {
		if k.Tenant == tenant && k.Day == day {
			out[k.Scope] = v
		}
	}
	return out
}
