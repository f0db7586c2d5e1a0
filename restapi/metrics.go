/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsLabelResponseErrorCode = "code"

// activeResponseErrors is the counter of the registered ResponseErrorMetrics, if any.
// RespondError is a plain function, so the counter cannot be passed to it.
var activeResponseErrors atomic.Pointer[prometheus.CounterVec]

// ResponseErrorMetrics counts error envelopes written by RespondError, labelled by error code.
// Only one instance is active at a time, the one registered last.
type ResponseErrorMetrics struct {
	errors *prometheus.CounterVec
}

// NewResponseErrorMetrics creates restapi_response_errors_total under the given namespace.
func NewResponseErrorMetrics(namespace string) *ResponseErrorMetrics {
	return &ResponseErrorMetrics{errors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restapi",
		Name:      "response_errors_total",
		Help:      "The total number of error envelopes sent by the gateway.",
	}, []string{metricsLabelResponseErrorCode})}
}

// MustRegisterMetrics registers the counter and makes it active.
func (m *ResponseErrorMetrics) MustRegisterMetrics() {
	prometheus.MustRegister(m.errors)
	activeResponseErrors.Store(m.errors)
}

// UnregisterMetrics unregisters the counter. Errors are not counted until another instance is registered.
func (m *ResponseErrorMetrics) UnregisterMetrics() {
	activeResponseErrors.CompareAndSwap(m.errors, nil)
	prometheus.Unregister(m.errors)
}

func countResponseError(code string) {
	if c := activeResponseErrors.Load(); c != nil {
		c.WithLabelValues(code).Inc()
	}
}
