/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetrics represents Prometheus metrics of the rate limiting.
type PrometheusMetrics struct {
	RejectedTotal  *prometheus.CounterVec
	TrackedClients prometheus.Gauge
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Number of requests rejected by the rate limiter.",
		}, []string{"backend"}),
		TrackedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_tracked_clients",
			Help:      "Number of clients with a rate window kept in memory.",
		}),
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegisterMetrics() {
	prometheus.MustRegister(pm.RejectedTotal, pm.TrackedClients)
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (pm *PrometheusMetrics) UnregisterMetrics() {
	prometheus.Unregister(pm.RejectedTotal)
	prometheus.Unregister(pm.TrackedClients)
}

// IncRejected counts a rejected request.
func (pm *PrometheusMetrics) IncRejected(backend string) {
	pm.RejectedTotal.WithLabelValues(backend).Inc()
}

// SetTrackedClients sets the number of clients tracked by the in-memory limiter.
func (pm *PrometheusMetrics) SetTrackedClients(n int) {
	pm.TrackedClients.Set(float64(n))
}
