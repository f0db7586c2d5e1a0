/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	httpRequestMetricsLabelMethod       = "method"
	httpRequestMetricsLabelRoutePattern = "route_pattern"
	httpRequestMetricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets covers fast gateway-local answers (429, 401) as well as
// upstream calls up to the 30 seconds forwarding timeout.
var DefaultHTTPRequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// HTTPRequestMetricsCollectorOpts represents options for HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	Namespace       string
	DurationBuckets []float64
}

// HTTPRequestMetricsCollector holds metrics of incoming HTTP requests.
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestMetricsCollector creates a collector with default options.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts creates a collector.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "A histogram of the HTTP request durations.",
			Buckets:   buckets,
		}, []string{httpRequestMetricsLabelMethod, httpRequestMetricsLabelRoutePattern, httpRequestMetricsLabelStatusCode}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being served.",
		}, []string{httpRequestMetricsLabelRoutePattern}),
	}
}

// MustRegisterMetrics registers the collector in the default Prometheus registry.
func (c *HTTPRequestMetricsCollector) MustRegisterMetrics() {
	prometheus.MustRegister(c.Durations, c.InFlight)
}

// UnregisterMetrics removes the collector from the default Prometheus registry.
func (c *HTTPRequestMetricsCollector) UnregisterMetrics() {
	prometheus.Unregister(c.Durations)
	prometheus.Unregister(c.InFlight)
}

func (c *HTTPRequestMetricsCollector) observe(method, routePattern string, status int, elapsed time.Duration) {
	c.Durations.WithLabelValues(method, routePattern, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// HTTPRequestMetricsOpts represents options for HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	ExcludedEndpoints []string
}

// HTTPRequestMetrics is a middleware that measures incoming HTTP requests.
// The route pattern is used as a label, so getRoutePattern must return a finite set of values.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is a more configurable version of HTTPRequestMetrics.
func HTTPRequestMetricsWithOpts(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, e := range opts.ExcludedEndpoints {
		excluded[e] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if _, skip := excluded[r.URL.Path]; skip {
				next.ServeHTTP(rw, r)
				return
			}

			startTime := GetRequestStartTimeFromContext(r.Context())
			if startTime.IsZero() {
				startTime = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
			}
			routePattern := getRoutePattern(r)

			inFlight := collector.InFlight.WithLabelValues(routePattern)
			inFlight.Inc()
			defer inFlight.Dec()

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				if p := recover(); p != nil {
					// Recovery middleware answers 500 unless the handler aborted the response on purpose.
					if p != http.ErrAbortHandler { //nolint:errorlint
						collector.observe(r.Method, routePattern, http.StatusInternalServerError, time.Since(startTime))
					}
					panic(p)
				}
				collector.observe(r.Method, routePattern, statusOf(wrw), time.Since(startTime))
			}()
			next.ServeHTTP(wrw, r)
		})
	}
}
