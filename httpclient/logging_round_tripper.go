/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/log"
)

// LoggingMode selects which upstream calls are logged.
type LoggingMode string

const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// LoggingRoundTripperOpts holds optional settings of the logging round tripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider returns the logger of the inbound request. middleware.GetLoggerFromContext by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode is LoggingModeAll when empty.
	Mode LoggingMode

	// SlowRequestThreshold also logs successful calls slower than it in LoggingModeFailed.
	SlowRequestThreshold time.Duration
}

func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts logs upstream calls with the inbound request's logger
// and adds the call duration to its logging params as an "upstream_<type>" time slot.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	if opts.Mode == LoggingModeNone {
		return delegate
	}
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	if opts.LoggerProvider == nil {
		opts.LoggerProvider = middleware.GetLoggerFromContext
	}

	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		ctx := r.Context()
		typ := requestTypeOf(ctx, reqType)

		start := time.Now()
		resp, err := delegate.RoundTrip(r)
		elapsed := time.Since(start)

		if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
			lp.AddTimeSlotDurationInMs("upstream_"+typ, elapsed)
		}
		logger := opts.LoggerProvider(ctx)
		if logger == nil || !opts.shouldLog(resp, err, elapsed) {
			return resp, err
		}

		logger = logger.With(
			log.String("upstream_type", typ),
			log.String("upstream_method", r.Method),
			log.String("upstream_url", r.URL.String()),
			log.Int64("duration_ms", elapsed.Milliseconds()),
		)
		if err != nil {
			logger.Error("upstream request failed", log.Error(err))
			return resp, err
		}
		logFn := logger.Info
		if resp.StatusCode >= http.StatusInternalServerError {
			logFn = logger.Warn
		}
		logFn("upstream request done", log.Int("upstream_status", resp.StatusCode))
		return resp, err
	})
}

func (opts LoggingRoundTripperOpts) shouldLog(resp *http.Response, err error, elapsed time.Duration) bool {
	if opts.Mode != LoggingModeFailed {
		return true
	}
	return err != nil || resp.StatusCode >= http.StatusInternalServerError || elapsed >= opts.SlowRequestThreshold
}
