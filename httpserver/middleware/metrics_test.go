/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPRequestMetricsNextHandler struct {
	calledNum          int
	statusCodeToReturn int
}

func (h *mockHTTPRequestMetricsNextHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.calledNum++
	if h.statusCodeToReturn != 0 {
		rw.WriteHeader(h.statusCodeToReturn)
	}
}

func TestHTTPRequestMetrics(t *testing.T) {
	getRoutePattern := func(r *http.Request) string { return "/v1/orders/*" }

	t.Run("durations are observed per status", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		next := &mockHTTPRequestMetricsNextHandler{statusCodeToReturn: http.StatusServiceUnavailable}
		h := HTTPRequestMetrics(collector, getRoutePattern)(next)

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orders/1", nil))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orders/2", nil))
		next.statusCodeToReturn = http.StatusTooManyRequests
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orders/3", nil))

		assert.Equal(t, 3, next.calledNum)
		assert.Equal(t, 2, testutil.CollectAndCount(collector.Durations))
		hist := collector.Durations.WithLabelValues(http.MethodGet, "/v1/orders/*", "503").(prometheus.Histogram)
		assert.Equal(t, 1, testutil.CollectAndCount(hist))
		assert.Equal(t, 0.0, testutil.ToFloat64(collector.InFlight.WithLabelValues("/v1/orders/*")))
	})

	t.Run("status defaults to 200 when nothing is written", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		h := HTTPRequestMetrics(collector, getRoutePattern)(&mockHTTPRequestMetricsNextHandler{})
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orders", nil))
		assert.Equal(t, 1, testutil.CollectAndCount(collector.Durations.MustCurryWith(
			prometheus.Labels{httpRequestMetricsLabelStatusCode: "200"})))
	})

	t.Run("panic is observed as 500", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		h := HTTPRequestMetrics(collector, getRoutePattern)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		require.Panics(t, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/orders", nil))
		})
		assert.Equal(t, 1, testutil.CollectAndCount(collector.Durations.MustCurryWith(
			prometheus.Labels{httpRequestMetricsLabelStatusCode: "500"})))
	})

	t.Run("excluded endpoints are not measured", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		next := &mockHTTPRequestMetricsNextHandler{statusCodeToReturn: http.StatusOK}
		h := HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{ExcludedEndpoints: []string{"/metrics"}})(next)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, 1, next.calledNum)
		assert.Equal(t, 0, testutil.CollectAndCount(collector.Durations))
	})

	t.Run("nil route pattern getter", func(t *testing.T) {
		require.Panics(t, func() {
			HTTPRequestMetrics(NewHTTPRequestMetricsCollector(), nil)
		})
	})
}
