/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRequestType labels upstream calls that carry no type in options or context.
const DefaultRequestType = "upstream"

// statusNoResponse labels calls that ended without an upstream response.
const statusNoResponse = "0"

// RoundTripperFunc lets a plain function be used as http.RoundTripper.
type RoundTripperFunc func(r *http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// MetricsCollector receives one observation per upstream call.
type MetricsCollector interface {
	ObserveRequest(requestType, host, method, status string, elapsed time.Duration)
}

// PrometheusMetricsCollector keeps upstream call durations in a histogram.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "Duration of calls from the gateway to upstream services.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"type", "remote_address", "method", "status"}),
	}
}

func (p *PrometheusMetricsCollector) MustRegisterMetrics() {
	prometheus.MustRegister(p.Durations)
}

func (p *PrometheusMetricsCollector) UnregisterMetrics() {
	prometheus.Unregister(p.Durations)
}

func (p *PrometheusMetricsCollector) ObserveRequest(requestType, host, method, status string, elapsed time.Duration) {
	p.Durations.WithLabelValues(requestType, host, method, status).Observe(elapsed.Seconds())
}

// NewMetricsRoundTripper reports every call passing through delegate to collector.
// Calls that got no response are labelled with status "0".
func NewMetricsRoundTripper(delegate http.RoundTripper, requestType string, collector MetricsCollector) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := delegate.RoundTrip(r)
		status := statusNoResponse
		if err == nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		collector.ObserveRequest(requestTypeOf(r.Context(), requestType), r.URL.Host, r.Method, status, time.Since(start))
		return resp, err
	})
}
